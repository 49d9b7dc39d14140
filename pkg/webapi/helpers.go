package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	slpg "github.com/simpleledger/slpgraph/pkg"
)

var httpCodeForError = map[slpg.ErrorCode]int{
	slpg.BadRequest:               400,
	slpg.NotFound:                 404,
	slpg.NotIssuance:              422,
	slpg.NotTokenTransaction:      422,
	slpg.InvalidLineage:           422,
	slpg.NotAvailable:             503,
	slpg.ValidationUnavailable:    503,
	slpg.SpendResolutionFailed:    503,
	slpg.SpendResolutionAmbiguous: 503,
	slpg.UnknownError:             500,
}

func HttpStatusForError(code slpg.ErrorCode) int {
	status, found := httpCodeForError[code]
	if !found {
		status = http.StatusInternalServerError
	}
	return status
}

func sendResponse(w http.ResponseWriter, payload any) {
	sendResponseStatus(w, http.StatusOK, payload)
}

func sendResponseStatus(w http.ResponseWriter, status int, payload any) {
	// note: w.Header after this, so we can call sendError
	b, err := json.Marshal(payload)
	if err != nil {
		sendErrorResponse(w, http.StatusInternalServerError, slpg.UnknownError, fmt.Sprintf("in json.Marshal: %s", err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store") // graphs change with every block
	w.WriteHeader(status)
	w.Write(b)
}

func sendError(w http.ResponseWriter, where string, err error) {
	var info *slpg.ErrorInfo
	if errors.As(err, &info) {
		status := HttpStatusForError(info.Code)
		message := fmt.Sprintf("%s: %s", where, info.Message)
		sendErrorResponse(w, status, info.Code, message)
	} else {
		message := fmt.Sprintf("%s: %s", where, err.Error())
		sendErrorResponse(w, http.StatusInternalServerError, slpg.UnknownError, message)
	}
}

func sendErrorResponse(w http.ResponseWriter, statusCode int, code slpg.ErrorCode, message string) {
	log.Printf("WebAPI: [!] %s: %s\n", code, message)
	// formatted by hand so an encoding error cannot hide the original one
	payload := fmt.Sprintf("{\"error\":{\"code\":%q,\"message\":%q}}", code, message)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	w.Write([]byte(payload))
}
