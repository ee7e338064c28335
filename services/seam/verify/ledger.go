// Copyright (C) 2026 Seamkit Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/seamkit/seamkit/services/seam/plan"
)

// ledgerKeyPrefix namespaces ledger records in the shared Badger store.
const ledgerKeyPrefix = "seam:ledger:"

// AppliedRecord is one ledger entry: a plan that was marked applied and
// the call sites it rewrote.
type AppliedRecord struct {
	PlanID       string   `json:"plan_id"`
	Generation   uint64   `json:"generation"`
	CallSiteIDs  []string `json:"call_site_ids"`
	AppliedAtUTC int64    `json:"applied_at_utc"`
}

// Ledger records applied plans and refuses a plan whose call-site rewrites
// overlap a previously applied plan within the same graph generation.
//
// Thread Safety:
//
//	All methods serialize on an internal mutex. Two goroutines racing to
//	apply overlapping plans will see exactly one succeed.
type Ledger struct {
	mu sync.Mutex

	// siteOwner maps generation -> call site ID -> owning plan ID.
	siteOwner map[uint64]map[string]string
	records   []AppliedRecord

	db     *badger.DB // nil means in-memory only
	logger *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerDB persists applied records to the given Badger store and
// reloads surviving records on construction.
func WithLedgerDB(db *badger.DB) LedgerOption {
	return func(l *Ledger) { l.db = db }
}

// WithLedgerLogger sets the structured logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a Ledger, loading any persisted records when a store
// is attached.
func NewLedger(opts ...LedgerOption) (*Ledger, error) {
	l := &Ledger{
		siteOwner: make(map[uint64]map[string]string),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.db != nil {
		if err := l.loadPersisted(); err != nil {
			return nil, fmt.Errorf("failed to load persisted ledger: %w", err)
		}
	}
	return l, nil
}

// MarkApplied records the plan as applied.
//
// Description:
//
//	Extracts the call sites the plan's RedirectCallSite edits rewrite and
//	checks them against previously applied plans of the same generation.
//	Any overlap rejects the whole plan; the ledger stays unchanged. No-op
//	plans record nothing and always succeed.
//
// Outputs:
//
//	*Violation - Non-nil when an overlapping call site rejected the plan.
//	error - Non-nil for persistence failures, not for overlap rejections.
func (l *Ledger) MarkApplied(p *plan.Plan) (*Violation, error) {
	if p == nil {
		return nil, fmt.Errorf("plan must not be nil")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sites := redirectSites(p)
	owners := l.siteOwner[p.Generation]
	for _, site := range sites {
		if owner, taken := owners[site]; taken {
			return &Violation{
				Check:  CheckLedgerOverlap,
				NodeID: site,
				Reason: fmt.Sprintf("call site %s already rewritten by plan %s", site, owner),
			}, nil
		}
	}

	record := AppliedRecord{
		PlanID:       p.ID,
		Generation:   p.Generation,
		CallSiteIDs:  sites,
		AppliedAtUTC: time.Now().UTC().UnixMilli(),
	}
	if l.db != nil {
		if err := l.persist(record); err != nil {
			return nil, fmt.Errorf("failed to persist ledger record for plan %s: %w", p.ID, err)
		}
	}
	l.admit(record)

	l.logger.Debug("Plan recorded in applied ledger",
		"planID", p.ID,
		"generation", p.Generation,
		"callSites", len(sites))
	return nil, nil
}

// Applied returns a copy of all recorded entries, oldest first.
func (l *Ledger) Applied() []AppliedRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AppliedRecord, len(l.records))
	copy(out, l.records)
	return out
}

// AppliedCount returns the number of recorded plans for a generation.
func (l *Ledger) AppliedCount(generation uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.records {
		if r.Generation == generation {
			n++
		}
	}
	return n
}

// admit indexes a record. Caller holds the mutex.
func (l *Ledger) admit(record AppliedRecord) {
	owners := l.siteOwner[record.Generation]
	if owners == nil {
		owners = make(map[string]string)
		l.siteOwner[record.Generation] = owners
	}
	for _, site := range record.CallSiteIDs {
		owners[site] = record.PlanID
	}
	l.records = append(l.records, record)
}

func (l *Ledger) persist(record AppliedRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger record: %w", err)
	}
	key := fmt.Sprintf("%s%d:%s", ledgerKeyPrefix, record.Generation, record.PlanID)
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (l *Ledger) loadPersisted() error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ledgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record AppliedRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return fmt.Errorf("failed to unmarshal ledger record: %w", err)
				}
				l.admit(record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// redirectSites extracts the sorted, de-duplicated call site IDs a plan's
// redirects rewrite.
func redirectSites(p *plan.Plan) []string {
	seen := make(map[string]bool)
	var sites []string
	for _, e := range p.Edits {
		if e.Op != plan.RedirectCallSite || e.CallSiteID == "" {
			continue
		}
		if !seen[e.CallSiteID] {
			seen[e.CallSiteID] = true
			sites = append(sites, e.CallSiteID)
		}
	}
	return sites
}
