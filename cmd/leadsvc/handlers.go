package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	leads "github.com/osr-alliance/backend-lib-leads"
)

// maximum accepted request body (json or csv)
const maxBodyBytes = 10 << 20

type lead struct {
	store      leads.Storage
	normalizer *leads.Normalizer
	maxBody    int64
}

type leadInterface interface {
	GetAll(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Create(w http.ResponseWriter, r *http.Request)
	Import(w http.ResponseWriter, r *http.Request)
	ImportCSV(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

func NewLead(store leads.Storage, n *leads.Normalizer) leadInterface {
	return &lead{
		store:      store,
		normalizer: n,
		maxBody:    maxBodyBytes,
	}
}

type messageResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type importResponse struct {
	Message string        `json:"message"`
	Leads   []*leads.Lead `json:"leads"`
}

// newRouter wires every route. The handlers never reach for the storage any other way than through l
func newRouter(l leadInterface, log *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(log))

	router.HandleFunc("/healthz", health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/leads", l.GetAll).Methods(http.MethodGet)
	api.HandleFunc("/leads", l.Create).Methods(http.MethodPost)
	api.HandleFunc("/leads/import", l.Import).Methods(http.MethodPost)
	api.HandleFunc("/leads/import/csv", l.ImportCSV).Methods(http.MethodPost)
	api.HandleFunc("/leads/{id}", l.Get).Methods(http.MethodGet)
	api.HandleFunc("/leads/{id}", l.Update).Methods(http.MethodPatch)
	api.HandleFunc("/leads/{id}", l.Delete).Methods(http.MethodDelete)

	return router
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (l *lead) GetAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := leads.Filter{
		Status: q.Get("status"),
		Source: q.Get("source"),
		Email:  q.Get("email"),
		Phone:  q.Get("phone"),
		Date:   q.Get("date"),
	}

	var (
		res []*leads.Lead
		err error
	)
	if f.IsZero() {
		res, err = l.store.GetAll(r.Context())
	} else {
		res, err = l.store.Search(r.Context(), f)
	}
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (l *lead) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	a, found, err := l.store.Get(r.Context(), id)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !found {
		writeMessage(w, r, http.StatusNotFound, "Lead not found")
		return
	}

	writeJSON(w, r, http.StatusOK, a)
}

func (l *lead) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := l.readBody(w, r)
	if !ok {
		return
	}

	in, err := leads.ParseInput(body)
	if err != nil {
		badInput(w, r, err)
		return
	}

	a, err := l.store.Create(r.Context(), in)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, a)
}

func (l *lead) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := l.readBody(w, r)
	if !ok {
		return
	}

	ins, err := leads.ParseImport(body)
	if err != nil {
		badInput(w, r, err)
		return
	}

	l.importInputs(w, r, ins)
}

// ImportCSV takes either a raw text/csv body or a multipart form with the file in `file`
func (l *lead) ImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, l.maxBody)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		f, _, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeMessage(w, r, http.StatusBadRequest, "Request body too large")
				return
			}
			writeMessage(w, r, http.StatusBadRequest, "Missing csv file in form field `file`")
			return
		}
		defer f.Close()
		src = f
	}

	ins, err := leads.ReadInputs(src, l.normalizer)
	if err != nil {
		badInput(w, r, err)
		return
	}

	l.importInputs(w, r, ins)
}

func (l *lead) importInputs(w http.ResponseWriter, r *http.Request, ins []leads.Input) {
	imported, err := l.store.Import(r.Context(), ins)
	if err != nil {
		internalError(w, r, err)
		return
	}

	entry(r).WithField("count", len(imported)).Info("imported leads")
	writeJSON(w, r, http.StatusCreated, &importResponse{
		Message: fmt.Sprintf("Successfully imported %d leads", len(imported)),
		Leads:   imported,
	})
}

func (l *lead) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	body, ok := l.readBody(w, r)
	if !ok {
		return
	}

	p, err := leads.ParsePatch(body)
	if err != nil {
		badInput(w, r, err)
		return
	}

	a, found, err := l.store.Update(r.Context(), id, p)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !found {
		writeMessage(w, r, http.StatusNotFound, "Lead not found")
		return
	}

	writeJSON(w, r, http.StatusOK, a)
}

func (l *lead) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := leadID(w, r)
	if !ok {
		return
	}

	deleted, err := l.store.Delete(r.Context(), id)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !deleted {
		writeMessage(w, r, http.StatusNotFound, "Lead not found")
		return
	}

	writeMessage(w, r, http.StatusOK, "Lead deleted successfully")
}

// leadID parses the {id} path variable; on failure the 400 has already been written
func leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "Invalid lead ID")
		return 0, false
	}
	return id, true
}

func (l *lead) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, l.maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeMessage(w, r, http.StatusBadRequest, "Request body too large")
			return nil, false
		}
		writeMessage(w, r, http.StatusBadRequest, "Unable to read request body")
		return nil, false
	}
	return body, true
}

// badInput answers a ValidationError or a csv ParseError with a 400; anything else is a 500
func badInput(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeMessage(w, r, http.StatusBadRequest, "Request body too large")
		return
	}

	var ve *leads.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, r, http.StatusBadRequest, &messageResponse{Message: "Validation error", Errors: ve.Fields})
		return
	}

	var pe *leads.ParseError
	if errors.As(err, &pe) {
		writeMessage(w, r, http.StatusBadRequest, "Invalid CSV file: "+pe.Error())
		return
	}

	internalError(w, r, err)
}

// internalError logs err but never sends it to the client
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	entry(r).WithError(err).Error("internal error")
	writeMessage(w, r, http.StatusInternalServerError, "Internal server error")
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, &messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		entry(r).WithError(err).Warn("writing response")
	}
}
