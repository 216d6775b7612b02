package io

import (
	"io"
	"os"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/scan"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

// WriteRowsAsGeoJsonFile writes scan rows as a GeoJSON file.
func WriteRowsAsGeoJsonFile(rows []*scan.Row, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create GeoJSON file %s", filename)
	}

	defer func() {
		err = file.Close()
		sigolo.FatalCheck(errors.Wrapf(err, "Unable to close file handle for GeoJSON file %s", file.Name()))
	}()

	return WriteRowsAsGeoJson(rows, file)
}

// WriteRowsAsGeoJson renders scan rows as a GeoJSON feature collection. Rows
// without geometry (for example non-area relations) are skipped.
func WriteRowsAsGeoJson(rows []*scan.Row, writer io.Writer) error {
	sigolo.Debugf("Write %d rows to GeoJSON", len(rows))
	writeStartTime := time.Now()

	featureCollection := geojson.NewFeatureCollection()
	for _, row := range rows {
		feature := RowToGeoJson(row)
		if feature == nil {
			continue
		}
		featureCollection.Features = append(featureCollection.Features, feature)
	}

	geojsonBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to marshal GeoJSON feature collection")
	}

	_, err = writer.Write(geojsonBytes)
	if err != nil {
		return errors.Wrap(err, "Unable to write GeoJSON data")
	}

	sigolo.Debugf("Finished writing in %s", time.Since(writeStartTime))

	return nil
}

// RowToGeoJson converts one scan row to a GeoJSON feature, or nil when the
// row has no geometry.
func RowToGeoJson(row *scan.Row) *geojson.Feature {
	if row.Geometry == nil {
		sigolo.Tracef("Skipping feature %d without geometry", row.ID)
		return nil
	}

	feature := geojson.NewFeature(row.Geometry)
	feature.Properties["@id"] = row.ID
	feature.Properties["@kind"] = row.Kind.String()
	if row.IsArea {
		feature.Properties["@area"] = true
	}

	for key, value := range row.Tags {
		feature.Properties[key] = value
	}

	return feature
}
