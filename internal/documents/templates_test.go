package documents

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
	pkgerrors "github.com/hopl-labs/hopl-backend/pkg/errors"
)

func TestDefaultStoreCoversEveryDocumentType(t *testing.T) {
	store, err := DefaultStore()
	require.NoError(t, err)

	assert.Empty(t, store.MissingBaseTemplates())
	assert.GreaterOrEqual(t, store.Len(), len(enums.DocumentTypes()))
	for _, docType := range enums.DocumentTypes() {
		tmpl, err := store.Resolve(docType, enums.JurisdictionGlobal, "")
		require.NoError(t, err, docType)
		assert.Contains(t, tmpl.Body, "{{businessName}}", docType)
	}
}

func TestResolveFallbackChain(t *testing.T) {
	store, err := DefaultStore()
	require.NoError(t, err)

	cases := []struct {
		name         string
		docType      enums.DocumentType
		jurisdiction enums.Jurisdiction
		language     string
		wantKey      string
	}{
		{"exact match", enums.DocumentPrivacyPolicy, enums.JurisdictionEUGDPR, "English", "PRIVACY_POLICY/EU_GDPR/English"},
		{"language is case insensitive", enums.DocumentPrivacyPolicy, enums.JurisdictionEUGDPR, "  english ", "PRIVACY_POLICY/EU_GDPR/English"},
		{"global in requested language", enums.DocumentPrivacyPolicy, enums.JurisdictionUKDPA, "Spanish", "PRIVACY_POLICY/GLOBAL/Spanish"},
		{"global english", enums.DocumentNDA, enums.JurisdictionBRLGPD, "Klingon", "NDA/GLOBAL/English"},
		{"empty language means english", enums.DocumentSOP, enums.JurisdictionGlobal, "", "SOP/GLOBAL/English"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl, err := store.Resolve(tc.docType, tc.jurisdiction, tc.language)
			require.NoError(t, err)
			assert.Equal(t, tc.wantKey, tmpl.Key())
		})
	}
}

func TestResolveUnsupportedCombination(t *testing.T) {
	store, err := LoadStore(fstest.MapFS{
		"manifest.json": {Data: []byte(`{"version":1,"templates":[{"document_type":"NDA","jurisdiction":"EU_GDPR","language":"English","file":"nda.md"}]}`)},
		"nda.md":        {Data: []byte("# NDA for {{businessName}}")},
	})
	require.NoError(t, err)

	_, err = store.Resolve(enums.DocumentNDA, enums.JurisdictionUSCCPA, "English")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnsupportedCombination))
	assert.Len(t, store.MissingBaseTemplates(), len(enums.DocumentTypes()))
}

func TestLoadStoreRejectsInvalidManifest(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"missing manifest": {},
		"schema violation": {
			"manifest.json": {Data: []byte(`{"version":1,"templates":[{"document_type":"NDA","language":"English","file":"nda.md"}]}`)},
		},
		"unknown field": {
			"manifest.json": {Data: []byte(`{"version":1,"templates":[],"extra":true}`)},
		},
		"unknown document type": {
			"manifest.json": {Data: []byte(`{"version":1,"templates":[{"document_type":"LEASE","jurisdiction":"GLOBAL","language":"English","file":"lease.md"}]}`)},
			"lease.md":      {Data: []byte("lease")},
		},
		"missing file": {
			"manifest.json": {Data: []byte(`{"version":1,"templates":[{"document_type":"NDA","jurisdiction":"GLOBAL","language":"English","file":"nda.md"}]}`)},
		},
		"duplicate key": {
			"manifest.json": {Data: []byte(`{"version":1,"templates":[
				{"document_type":"NDA","jurisdiction":"GLOBAL","language":"English","file":"nda.md"},
				{"document_type":"NDA","jurisdiction":"GLOBAL","language":"english","file":"nda.md"}]}`)},
			"nda.md": {Data: []byte("nda")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadStore(fsys)
			assert.Error(t, err)
		})
	}
}
