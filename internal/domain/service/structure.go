package service

import "MarketStructure/internal/domain/models"

// StructureEngine detects market-structure setups per instrument.
type StructureEngine interface {
	Analyze(instrument string, series models.PriceSeries) ([]models.SignalCandidate, error)
	AnalyzeDetailed(instrument string, series models.PriceSeries) (models.AnalysisResult, error)
	// Explain evaluates a series without changing engine state.
	Explain(instrument string, series models.PriceSeries) (models.AnalysisResult, error)
	GetActiveLevels(instrument string) []models.AnchorLevel
	GetVolatility(instrument string) *models.VolatilityEstimate
	ResetPeriods(instrument string, periods []models.Period) error
	RestoreLevels(instrument string, levels []models.AnchorLevel) error
	HistoricalLevels(instrument string) []models.AnchorLevel
	Instruments() []string
}
