package controllers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hopl-labs/hopl-backend/internal/documents"
	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

type stubDocumentService struct {
	doc    *documents.DocumentDTO
	list   *documents.ListResult
	err    error
	listed documents.ListParams

	generatedFor uuid.UUID
	request      documents.GenerateRequest
}

func (s *stubDocumentService) Types() []documents.TypeOption {
	return []documents.TypeOption{{Value: enums.DocumentPrivacyPolicy, Label: "Privacy Policy"}}
}

func (s *stubDocumentService) Generate(ctx context.Context, accountID uuid.UUID, req documents.GenerateRequest) (*documents.DocumentDTO, error) {
	s.generatedFor = accountID
	s.request = req
	return s.doc, s.err
}

func (s *stubDocumentService) Get(ctx context.Context, accountID, id uuid.UUID) (*documents.DocumentDTO, error) {
	return s.doc, s.err
}

func (s *stubDocumentService) List(ctx context.Context, params documents.ListParams) (*documents.ListResult, error) {
	s.listed = params
	return s.list, s.err
}

func sampleDocument() *documents.DocumentDTO {
	return &documents.DocumentDTO{
		ID:           uuid.New(),
		DocumentType: enums.DocumentPrivacyPolicy,
		Title:        "Privacy Policy",
		Content:      "# Privacy Policy\n\nWe collect email addresses.",
		BusinessName: "Acme",
		Jurisdiction: enums.JurisdictionEUGDPR,
		Language:     "English",
		CreatedAt:    time.Now().UTC(),
	}
}

func TestDocumentTypes(t *testing.T) {
	rec := serve(DocumentTypes(&stubDocumentService{}, nil), jsonRequest(http.MethodGet, "/api/v1/documents/types", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body []documents.TypeOption
	decodeData(t, rec, &body)
	if len(body) != 1 || body[0].Value != enums.DocumentPrivacyPolicy {
		t.Fatalf("unexpected catalog %+v", body)
	}
}

func TestDocumentGenerate(t *testing.T) {
	svc := &stubDocumentService{doc: sampleDocument()}
	account := uuid.New()
	req := asAccount(jsonRequest(http.MethodPost, "/api/v1/documents/generate",
		`{"document_type":"PRIVACY_POLICY","business_name":"Acme","jurisdiction":"EU_GDPR"}`), account)

	rec := serve(DocumentGenerate(svc, nil), req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.generatedFor != account || svc.request.BusinessName != "Acme" {
		t.Fatalf("unexpected forwarded request %s %+v", svc.generatedFor, svc.request)
	}
}

func TestDocumentGenerateErrors(t *testing.T) {
	body := `{"document_type":"NDA","business_name":"Acme","jurisdiction":"EU_GDPR"}`

	rec := serve(DocumentGenerate(&stubDocumentService{}, nil), jsonRequest(http.MethodPost, "/api/v1/documents/generate", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without account, got %d", rec.Code)
	}

	cases := []struct {
		name   string
		err    error
		status int
		code   pkgerrors.Code
	}{
		{"insufficient credits", pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits"), http.StatusPaymentRequired, pkgerrors.CodeInsufficientCredits},
		{"unsupported combination", pkgerrors.New(pkgerrors.CodeUnsupportedCombination, "no template"), http.StatusUnprocessableEntity, pkgerrors.CodeUnsupportedCombination},
		{"generation failed", pkgerrors.New(pkgerrors.CodeGenerationFailed, "generation failed"), http.StatusBadGateway, pkgerrors.CodeGenerationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubDocumentService{err: tc.err}
			req := asAccount(jsonRequest(http.MethodPost, "/api/v1/documents/generate", body), uuid.New())
			rec := serve(DocumentGenerate(svc, nil), req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if envelope := decodeError(t, rec); envelope.Error.Code != string(tc.code) {
				t.Fatalf("expected %s, got %s", tc.code, envelope.Error.Code)
			}
		})
	}
}

func TestDocumentListParsesPaging(t *testing.T) {
	svc := &stubDocumentService{list: &documents.ListResult{Items: []documents.ListItem{}, Cursor: "next"}}
	account := uuid.New()

	req := asAccount(jsonRequest(http.MethodGet, "/api/v1/documents?limit=5&cursor=abc", ""), account)
	rec := serve(DocumentList(svc, nil), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.listed.UserID != account || svc.listed.Limit != 5 || svc.listed.Cursor != "abc" {
		t.Fatalf("unexpected list params %+v", svc.listed)
	}

	req = asAccount(jsonRequest(http.MethodGet, "/api/v1/documents?limit=1000", ""), account)
	if rec := serve(DocumentList(svc, nil), req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rec.Code)
	}
}

func TestDocumentGetOwnerOnly(t *testing.T) {
	doc := sampleDocument()
	svc := &stubDocumentService{doc: doc}
	req := withURLParam(asAccount(jsonRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), ""), uuid.New()), "documentId", doc.ID.String())

	rec := serve(DocumentGet(svc, nil), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "document not found")
	req = withURLParam(asAccount(jsonRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String(), ""), uuid.New()), "documentId", doc.ID.String())
	if rec := serve(DocumentGet(svc, nil), req); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign document, got %d", rec.Code)
	}
}

func TestDocumentDownloadRendersPDF(t *testing.T) {
	doc := sampleDocument()
	svc := &stubDocumentService{doc: doc}
	req := withURLParam(asAccount(jsonRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/pdf", ""), uuid.New()), "documentId", doc.ID.String())

	rec := serve(DocumentDownload(svc, documents.PDFRenderer{}, nil), req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("expected pdf header, got %q", rec.Body.Bytes()[:8])
	}
}

type failingRenderer struct{}

func (failingRenderer) ContentType() string { return "application/pdf" }

func (failingRenderer) Render(ctx context.Context, doc *documents.DocumentDTO) ([]byte, error) {
	return nil, errors.New("font missing")
}

func TestDocumentDownloadRenderFailure(t *testing.T) {
	doc := sampleDocument()
	svc := &stubDocumentService{doc: doc}
	req := withURLParam(asAccount(jsonRequest(http.MethodGet, "/api/v1/documents/"+doc.ID.String()+"/pdf", ""), uuid.New()), "documentId", doc.ID.String())

	rec := serve(DocumentDownload(svc, failingRenderer{}, nil), req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error, got %q", ct)
	}
}
