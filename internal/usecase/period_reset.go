package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "MarketStructure/internal/domain/repository"
	domsvc "MarketStructure/internal/domain/service"
	"MarketStructure/internal/services/features"
	applogger "MarketStructure/pkg/logger"
)

// PeriodResetUseCase rebuilds the anchor levels of an instrument from stored
// candles at a period boundary and mirrors them to the snapshot store.
type PeriodResetUseCase struct {
	candles   domrepo.CandleStore
	engine    domsvc.StructureEngine
	snapshots domrepo.LevelSnapshots // optional
	tf        domrepo.Timeframe
	periodLen time.Duration
	loc       *time.Location
	retention int
	l         *applogger.Logger
	now       func() time.Time
}

func NewPeriodResetUseCase(candles domrepo.CandleStore, engine domsvc.StructureEngine, snapshots domrepo.LevelSnapshots,
	tf domrepo.Timeframe, periodLen time.Duration, loc *time.Location, retention int, l *applogger.Logger) *PeriodResetUseCase {
	if loc == nil {
		loc = time.UTC
	}
	if periodLen <= 0 {
		periodLen = 24 * time.Hour
	}
	return &PeriodResetUseCase{
		candles:   candles,
		engine:    engine,
		snapshots: snapshots,
		tf:        tf,
		periodLen: periodLen,
		loc:       loc,
		retention: retention,
		l:         l,
		now:       time.Now,
	}
}

// Reset loads the retention window of candles, splits it into periods and
// hands them to the engine. The current, unfinished period is included; the
// engine uses it as the single anchor.
func (uc *PeriodResetUseCase) Reset(ctx context.Context, instrument string) error {
	to := uc.now()
	from := to.Add(-time.Duration(uc.retention+1) * uc.periodLen)
	candles, err := uc.candles.GetCandles(ctx, instrument, from, to, uc.tf)
	if err != nil {
		return fmt.Errorf("load candles %s: %w", instrument, err)
	}
	periods := features.SplitPeriods(candles, uc.periodLen, uc.loc)
	if len(periods) == 0 {
		if uc.l != nil {
			uc.l.Warn("period reset skipped, no candles",
				applogger.String("instrument", instrument),
				applogger.Time("from", from),
			)
		}
		return nil
	}
	if err := uc.engine.ResetPeriods(instrument, periods); err != nil {
		return fmt.Errorf("reset periods %s: %w", instrument, err)
	}
	if uc.l != nil {
		uc.l.Info("anchor levels reset",
			applogger.String("instrument", instrument),
			applogger.Int("periods", len(periods)),
			applogger.Int("candles", len(candles)),
		)
	}
	if uc.snapshots == nil {
		return nil
	}
	if err := uc.snapshots.Save(ctx, instrument, uc.engine.HistoricalLevels(instrument)); err != nil {
		return fmt.Errorf("save level snapshot %s: %w", instrument, err)
	}
	return nil
}

// ResetAll resets every instrument and returns the first error after trying
// all of them.
func (uc *PeriodResetUseCase) ResetAll(ctx context.Context, instruments []string) error {
	var first error
	for _, inst := range instruments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := uc.Reset(ctx, inst); err != nil {
			if uc.l != nil {
				uc.l.Error("period reset failed", applogger.String("instrument", inst), applogger.Error(err))
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Restore loads a level snapshot into the engine. It reports whether a
// snapshot existed.
func (uc *PeriodResetUseCase) Restore(ctx context.Context, instrument string) (bool, error) {
	if uc.snapshots == nil {
		return false, nil
	}
	levels, ok, err := uc.snapshots.Load(ctx, instrument)
	if err != nil || !ok {
		return false, err
	}
	if err := uc.engine.RestoreLevels(instrument, levels); err != nil {
		return false, fmt.Errorf("restore levels %s: %w", instrument, err)
	}
	if uc.l != nil {
		uc.l.Info("anchor levels restored", applogger.String("instrument", instrument), applogger.Int("levels", len(levels)))
	}
	return true, nil
}
