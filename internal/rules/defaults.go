package rules

var siteUnreachable = RuleDefinition{
	Code:        CodeSiteUnreachable,
	Title:       "Website Unreachable",
	Description: "The website could not be fetched, so no other check could be evaluated.",
	Severity:    100,
}

var defaultRules = []RuleDefinition{
	{
		Code:        CodeMissingPrivacyPolicy,
		Title:       "Missing Privacy Policy",
		Description: "Your website does not have a visible Privacy Policy link. Required by GDPR, CCPA, and most data protection laws.",
		Severity:    15,
	},
	{
		Code:        CodeMissingTerms,
		Title:       "Missing Terms of Service",
		Description: "No Terms of Service or Terms and Conditions link was found on your website.",
		Severity:    10,
	},
	{
		Code:        CodeMissingCookieConsent,
		Title:       "Missing Cookie Consent Banner",
		Description: "No cookie consent mechanism detected. GDPR requires explicit consent before setting non-essential cookies.",
		Severity:    15,
	},
	{
		Code:        CodeNoContactInfo,
		Title:       "No Contact Information",
		Description: "No visible contact email, form, or address found. Most regulations require users to be able to contact you.",
		Severity:    8,
	},
	{
		Code:        CodeThirdPartyCookies,
		Title:       "Third-Party Tracking Without Disclosure",
		Description: "Third-party scripts (analytics, ads, pixels) detected but not disclosed in a privacy or cookie policy.",
		Severity:    12,
	},
	{
		Code:        CodeNoHTTPS,
		Title:       "Not Using HTTPS",
		Description: "Your website is not served over HTTPS. Unencrypted connections put user data at risk.",
		Severity:    10,
	},
	{
		Code:        CodeMissingCookiePolicy,
		Title:       "Missing Cookie Policy",
		Description: "Cookies are being set but no separate Cookie Policy page was found.",
		Severity:    8,
	},
	{
		Code:        CodeNoDataCollectionDisclosure,
		Title:       "No Data Collection Disclosure",
		Description: "Forms collecting user data found but no disclosure about what data is collected or how it's used.",
		Severity:    10,
	},
	{
		Code:        CodeNoOptOut,
		Title:       "No Opt-Out Mechanism",
		Description: "No unsubscribe or opt-out mechanism found for marketing communications.",
		Severity:    7,
	},
	{
		Code:        CodeNoAccessibilityBasics,
		Title:       "Missing Basic Accessibility",
		Description: "Basic accessibility features (alt text on images) are missing from key elements.",
		Severity:    5,
	},
	siteUnreachable,
}
