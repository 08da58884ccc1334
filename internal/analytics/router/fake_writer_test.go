package router

import (
	"context"

	"github.com/hopl-labs/hopl-backend/internal/analytics/types"
)

type fakeWriter struct {
	scans       []types.ScanFactRow
	generations []types.GenerationFactRow
	credits     []types.CreditFactRow
}

func (f *fakeWriter) InsertScanFact(_ context.Context, row types.ScanFactRow) error {
	f.scans = append(f.scans, row)
	return nil
}

func (f *fakeWriter) InsertGenerationFact(_ context.Context, row types.GenerationFactRow) error {
	f.generations = append(f.generations, row)
	return nil
}

func (f *fakeWriter) InsertCreditFact(_ context.Context, row types.CreditFactRow) error {
	f.credits = append(f.credits, row)
	return nil
}
