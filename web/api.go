package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hauke96/sigolo/v2"
	"github.com/hjanetzek/geodesk-fdw/gol"
	ownIo "github.com/hjanetzek/geodesk-fdw/io"
	"github.com/hjanetzek/geodesk-fdw/scan"
	"github.com/pkg/errors"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func NewErrorResponse(message string, err error) ErrorResponse {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	return response
}

// StartServer serves the feature API for one store on the given port.
func StartServer(port string, storePath string) {
	store, err := gol.Open(storePath)
	sigolo.FatalCheck(err)

	router := InitRouter(store)
	sigolo.Infof("Start server on port %s", port)
	err = http.ListenAndServe(":"+port, router)
	sigolo.FatalCheck(err)
}

func InitRouter(store *gol.Store) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/features", func(writer http.ResponseWriter, request *http.Request) {
		handleFeatures(store, writer, request)
	}).Methods(http.MethodGet)
	router.HandleFunc("/features/{kind}/{id}", func(writer http.ResponseWriter, request *http.Request) {
		handleFeature(store, writer, request)
	}).Methods(http.MethodGet)
	return router
}

// handleFeatures runs a filtered scan and returns the matching features as
// a GeoJSON feature collection.
//
// Query parameters:
//
//	filter  filter expression, see the pushdown package. Empty matches all.
//	fields  comma separated field list, default "tags,geometry".
func handleFeatures(store *gol.Store, writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/json")

	filterString := request.URL.Query().Get("filter")
	sigolo.Infof("Scan features with filter %q", filterString)

	fields := scan.DefaultFields
	if fieldList := request.URL.Query().Get("fields"); fieldList != "" {
		var err error
		fields, err = scan.ParseFields(fieldList)
		if err != nil {
			writeError(writer, http.StatusBadRequest, "Invalid fields parameter.", err)
			return
		}
	}

	scanner, err := scan.NewScanner(store, filterString, fields|scan.FieldGeometry, scan.DefaultOptions())
	if err != nil {
		writeError(writer, http.StatusBadRequest, "Invalid filter.", err)
		return
	}
	defer scanner.Close()

	var rows []*scan.Row
	for {
		row, err := scanner.Next()
		if err != nil {
			writeError(writer, http.StatusInternalServerError, "Error scanning features.", err)
			return
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	sigolo.Debugf("Found %d features", len(rows))

	err = ownIo.WriteRowsAsGeoJson(rows, writer)
	if err != nil {
		sigolo.Errorf("Error writing scan result: %+v", err)
	}
}

// handleFeature returns one feature by kind and ID, with all fields.
func handleFeature(store *gol.Store, writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Access-Control-Allow-Origin", "*")
	writer.Header().Set("Content-Type", "application/json")

	vars := mux.Vars(request)

	kind, err := parseKind(vars["kind"])
	if err != nil {
		writeError(writer, http.StatusBadRequest, "Invalid kind.", err)
		return
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "Invalid feature ID.", err)
		return
	}

	if _, ok := store.Lookup(kind, id); !ok {
		writeError(writer, http.StatusNotFound, fmt.Sprintf("No %s with ID %d.", kind.String(), id), nil)
		return
	}

	filterString := fmt.Sprintf("kind = %d and id = %d", int(kind), id)
	scanner, err := scan.NewScanner(store, filterString, scan.AllFields, scan.DefaultOptions())
	if err != nil {
		writeError(writer, http.StatusInternalServerError, "Error preparing lookup.", err)
		return
	}
	defer scanner.Close()

	row, err := scanner.Next()
	if err != nil || row == nil {
		writeError(writer, http.StatusInternalServerError, "Error reading feature.", err)
		return
	}

	err = ownIo.WriteRowsAsGeoJson([]*scan.Row{row}, writer)
	if err != nil {
		sigolo.Errorf("Error writing feature: %+v", err)
	}
}

func parseKind(name string) (gol.FeatureKind, error) {
	switch name {
	case "node":
		return gol.KindNode, nil
	case "way":
		return gol.KindWay, nil
	case "relation":
		return gol.KindRelation, nil
	}
	return 0, errors.Errorf("Unknown kind %q, expected node, way or relation", name)
}

func writeError(writer http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		sigolo.Errorf("%s %+v", message, err)
	} else {
		sigolo.Errorf("%s", message)
	}
	writer.WriteHeader(status)

	errorResponseBytes, marshalErr := json.Marshal(NewErrorResponse(message, err))
	if marshalErr != nil {
		sigolo.Errorf("Error marshalling error response: %+v", marshalErr)
		return
	}

	_, writeErr := writer.Write(errorResponseBytes)
	if writeErr != nil {
		sigolo.Errorf("Error writing error response: %+v", writeErr)
	}
}
