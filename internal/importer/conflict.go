package importer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ConflictResolution is an operator decision on a conflict record.
type ConflictResolution struct {
	Action ConflictAction `json:"action" validate:"required,oneof=link_existing create_new ignore"`
	// CompanyID is the target company; not used by ignore.
	CompanyID *int64 `json:"company_id,omitempty" validate:"required_unless=Action ignore"`
	ActorID   string `json:"actor_id,omitempty" validate:"max=100"`
}

// ResolveConflict applies a one-time terminal decision to a conflict
// record. A record that already left conflict yields
// ErrRecordNotInConflict.
func (s *Service) ResolveConflict(ctx context.Context, recordID string, res ConflictResolution) (*Record, error) {
	if err := validateRequest(res); err != nil {
		return nil, err
	}
	rec, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status != RecordConflict {
		return nil, eris.Wrapf(ErrRecordNotInConflict, "importer: record %s is %s", recordID, rec.Status)
	}

	if res.Action != ActionIgnore {
		c, err := s.registry.GetCompany(ctx, *res.CompanyID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, eris.Wrapf(ErrCompanyNotFound, "importer: company %d", *res.CompanyID)
		}
	}

	meta := &PublishMeta{By: res.ActorID, At: time.Now().UTC()}
	upd := RecordUpdate{Publish: meta}
	var delta Counters
	switch res.Action {
	case ActionLinkExisting:
		upd.Status, upd.Reason, upd.CompanyID = RecordUpdated, ReasonManualLink, res.CompanyID
		meta.Mode = PublishLinkedExisting
		delta.Updated = 1
	case ActionCreateNew:
		upd.Status, upd.Reason, upd.CompanyID = RecordInserted, ReasonForcedCreation, res.CompanyID
		meta.Mode = PublishCreatedNew
		delta.Inserted = 1
	case ActionIgnore:
		upd.Status, upd.Reason = RecordIgnored, ReasonIgnoredByOperator
		meta.Mode = PublishIgnored
	}

	if err := s.store.ResolveRecord(ctx, recordID, upd); err != nil {
		return nil, err
	}
	if !delta.IsZero() {
		if err := s.store.AddRunCounters(context.WithoutCancel(ctx), rec.RunID, delta); err != nil {
			return nil, err
		}
	}
	zap.L().Info("importer: conflict resolved",
		zap.String("run_id", rec.RunID),
		zap.String("record_id", recordID),
		zap.String("action", string(res.Action)),
		zap.String("actor", res.ActorID),
	)
	return s.GetRecord(ctx, recordID)
}
