package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// GenesisHash is the PrevHash of the first event in a journal.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash computes the link an event's successor must carry:
// SHA-256(id || prev_hash || action || name || outcome || at).
func ChainHash(ev Event) string {
	h := sha256.New()
	for _, part := range []string{ev.ID, ev.PrevHash, ev.Action, ev.Name, ev.Outcome, ev.At.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Check statuses.
const (
	CheckPass = "pass"
	CheckFail = "fail"
	CheckWarn = "warn"
)

// ChainCheck is the outcome of one verification rule.
type ChainCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// ChainReport summarises a journal verification.
type ChainReport struct {
	EventCount int          `json:"event_count"`
	Valid      bool         `json:"valid"`
	Checks     []ChainCheck `json:"checks"`
}

// Counts returns how many checks failed and how many warned.
func (r ChainReport) Counts() (failures, warnings int) {
	for _, c := range r.Checks {
		switch c.Status {
		case CheckFail:
			failures++
		case CheckWarn:
			warnings++
		}
	}
	return failures, warnings
}

func (r *ChainReport) add(name string, ok bool, okDetail, failDetail string) {
	if ok {
		r.Checks = append(r.Checks, ChainCheck{Name: name, Status: CheckPass, Detail: okDetail})
		return
	}
	r.Valid = false
	r.Checks = append(r.Checks, ChainCheck{Name: name, Status: CheckFail, Detail: failDetail})
}

// VerifyChain checks a complete journal, oldest event first. Out of order
// timestamps only warn since the wall clock may step backwards.
func VerifyChain(events []Event) ChainReport {
	report := ChainReport{EventCount: len(events), Valid: true}
	if len(events) == 0 {
		report.Checks = append(report.Checks, ChainCheck{Name: "empty_chain", Status: CheckPass, Detail: "no events to verify"})
		return report
	}

	report.add("genesis_anchor", events[0].PrevHash == GenesisHash, "",
		fmt.Sprintf("first event prev_hash=%s, expected genesis hash", events[0].PrevHash))

	var chainDetail string
	for i := 1; i < len(events); i++ {
		want := ChainHash(events[i-1])
		if events[i].PrevHash != want {
			chainDetail = fmt.Sprintf("event %d (id=%s) has prev_hash=%s but expected %s (computed from event %d)",
				i, events[i].ID, events[i].PrevHash, want, i-1)
			break
		}
	}
	report.add("chain_continuity", chainDetail == "",
		fmt.Sprintf("all %d events link correctly", len(events)), chainDetail)

	seen := make(map[string]int, len(events))
	var dupDetail string
	for i, ev := range events {
		if prev, ok := seen[ev.ID]; ok {
			dupDetail = fmt.Sprintf("event %d and event %d share id=%s", prev, i, ev.ID)
			break
		}
		seen[ev.ID] = i
	}
	report.add("no_duplicate_ids", dupDetail == "", "", dupDetail)

	check := ChainCheck{Name: "monotonic_timestamps", Status: CheckPass}
	for i := 1; i < len(events); i++ {
		if events[i].At.Before(events[i-1].At) {
			check.Status = CheckWarn
			check.Detail = fmt.Sprintf("event %d (at=%s) is earlier than event %d",
				i, events[i].At.Format(time.RFC3339Nano), i-1)
			break
		}
	}
	report.Checks = append(report.Checks, check)
	return report
}
