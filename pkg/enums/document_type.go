package enums

// DocumentType is a supported template key for generated documents.
type DocumentType string

const (
	DocumentPrivacyPolicy       DocumentType = "PRIVACY_POLICY"
	DocumentTermsOfService      DocumentType = "TERMS_OF_SERVICE"
	DocumentCookiePolicy        DocumentType = "COOKIE_POLICY"
	DocumentRefundPolicy        DocumentType = "REFUND_POLICY"
	DocumentDMCANotice          DocumentType = "DMCA_NOTICE"
	DocumentAcceptableUse       DocumentType = "ACCEPTABLE_USE"
	DocumentDisclaimer          DocumentType = "DISCLAIMER"
	DocumentNDA                 DocumentType = "NDA"
	DocumentFreelanceAgreement  DocumentType = "FREELANCE_AGREEMENT"
	DocumentSaaSLicense         DocumentType = "SAAS_LICENSE"
	DocumentConsultingAgreement DocumentType = "CONSULTING_AGREEMENT"
	DocumentBusinessPlan        DocumentType = "BUSINESS_PLAN"
	DocumentProposal            DocumentType = "PROPOSAL"
	DocumentJobDescription      DocumentType = "JOB_DESCRIPTION"
	DocumentSOP                 DocumentType = "SOP"
)

var validDocumentTypes = []DocumentType{
	DocumentPrivacyPolicy,
	DocumentTermsOfService,
	DocumentCookiePolicy,
	DocumentRefundPolicy,
	DocumentDMCANotice,
	DocumentAcceptableUse,
	DocumentDisclaimer,
	DocumentNDA,
	DocumentFreelanceAgreement,
	DocumentSaaSLicense,
	DocumentConsultingAgreement,
	DocumentBusinessPlan,
	DocumentProposal,
	DocumentJobDescription,
	DocumentSOP,
}

var documentTypeLabels = map[DocumentType]string{
	DocumentPrivacyPolicy:       "Privacy Policy",
	DocumentTermsOfService:      "Terms of Service",
	DocumentCookiePolicy:        "Cookie Policy",
	DocumentRefundPolicy:        "Refund & Return Policy",
	DocumentDMCANotice:          "DMCA / Copyright Notice",
	DocumentAcceptableUse:       "Acceptable Use Policy",
	DocumentDisclaimer:          "Disclaimer",
	DocumentNDA:                 "Non-Disclosure Agreement",
	DocumentFreelanceAgreement:  "Freelance Service Agreement",
	DocumentSaaSLicense:         "SaaS License Agreement",
	DocumentConsultingAgreement: "Consulting Agreement",
	DocumentBusinessPlan:        "Business Plan Executive Summary",
	DocumentProposal:            "Professional Proposal",
	DocumentJobDescription:      "Job Description",
	DocumentSOP:                 "Standard Operating Procedure",
}

// DocumentTypes returns the catalog in display order.
func DocumentTypes() []DocumentType {
	out := make([]DocumentType, len(validDocumentTypes))
	copy(out, validDocumentTypes)
	return out
}

// String implements fmt.Stringer.
func (d DocumentType) String() string {
	return string(d)
}

// Label returns the display name of the document type.
func (d DocumentType) Label() string {
	return documentTypeLabels[d]
}

// IsValid reports whether the value is a known DocumentType.
func (d DocumentType) IsValid() bool {
	_, ok := documentTypeLabels[d]
	return ok
}

// ParseDocumentType converts raw input into a DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	return lookupFold(validDocumentTypes, value, "document type")
}
