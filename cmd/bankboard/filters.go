package main

import (
	"fmt"
	"time"

	"bankboard/pkg/analysis"
)

type filters struct {
	startDate     string
	endDate       string
	categories    []string
	subcategories []string
	quantile      float64
}

const flagDateLayout = "2006-01-02"

func (f *filters) toOptions() (analysis.Options, error) {
	opts := analysis.Options{
		Categories:    f.categories,
		Subcategories: f.subcategories,
		Quantile:      f.quantile,
	}
	if f.startDate != "" {
		start, err := time.Parse(flagDateLayout, f.startDate)
		if err != nil {
			return opts, fmt.Errorf("invalid start date %q (want YYYY-MM-DD)", f.startDate)
		}
		opts.Start = start
	}
	if f.endDate != "" {
		end, err := time.Parse(flagDateLayout, f.endDate)
		if err != nil {
			return opts, fmt.Errorf("invalid end date %q (want YYYY-MM-DD)", f.endDate)
		}
		opts.End = end
	}
	if opts.Quantile < 0 || opts.Quantile > 1 {
		return opts, fmt.Errorf("quantile must be within [0, 1], got %v", opts.Quantile)
	}
	return opts, nil
}
