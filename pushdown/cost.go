package pushdown

import (
	"strings"

	"github.com/hjanetzek/geodesk-fdw/gol"
)

/*
Planner cost model. The store keeps no statistics, so these are fixed
selectivity guesses calibrated on typical OSM extracts: ways dominate,
relations are rare, common keys like highway and building cover a large
share of all features while specific keys like amenity are narrow.
*/

const (
	baseRowEstimate = 100000.0
	maxRowEstimate  = 1000000.0

	spatialSelectivity    = 0.05
	defaultTagSelectivity = 0.05
)

var tagSelectivity = map[string]float64{
	"building": 0.15,
	"highway":  0.20,
	"amenity":  0.01,
}

var typeSelectivity = map[gol.TypeMask]float64{
	gol.TypeNode:                    0.25,
	gol.TypeWay:                     0.70,
	gol.TypeRelation:                0.05,
	gol.TypeNode | gol.TypeWay:      0.95,
	gol.TypeNode | gol.TypeRelation: 0.30,
	gol.TypeWay | gol.TypeRelation:  0.75,
	gol.TypeAll:                     1.0,
}

// EstimateRows guesses the number of rows a plan will produce. The estimate
// only feeds relative plan comparisons, it makes no accuracy promises.
func EstimateRows(plan *Plan) float64 {
	estimate := baseRowEstimate
	if estimate > maxRowEstimate {
		estimate = maxRowEstimate
	}

	if selectivity, ok := typeSelectivity[plan.Types]; ok {
		estimate *= selectivity
	}
	if plan.Types == gol.TypeNone {
		return 0
	}

	if plan.Box != nil {
		estimate *= spatialSelectivity
	}

	for _, fragment := range plan.Fragments {
		key := fragment[1:]
		if separator := strings.IndexByte(key, '='); separator != -1 {
			key = key[:separator]
		}
		if selectivity, ok := tagSelectivity[key]; ok {
			estimate *= selectivity
		} else {
			estimate *= defaultTagSelectivity
		}
	}

	if estimate < 1 {
		estimate = 1
	}
	return estimate
}
