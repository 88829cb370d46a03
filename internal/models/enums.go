package models

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusRejected  Status = "rejected"
	StatusOffer     Status = "offer"
	StatusWithdrawn Status = "withdrawn"

	// StatusUnknown only appears on extraction results; it is never stored.
	StatusUnknown Status = "unknown"
)

// Statuses lists the values an Application row may hold.
var Statuses = []Status{StatusApplied, StatusInterview, StatusRejected, StatusOffer, StatusWithdrawn}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseStatus accepts a stored status value, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q (want one of %v)", raw, Statuses)
	}
	return s, nil
}

type Platform string

const (
	PlatformWorkday         Platform = "workday"
	PlatformGreenhouse      Platform = "greenhouse"
	PlatformLever           Platform = "lever"
	PlatformBambooHR        Platform = "bamboohr"
	PlatformSmartRecruiters Platform = "smartrecruiters"
	PlatformICIMS           Platform = "icims"
	PlatformJobvite         Platform = "jobvite"
	PlatformSuccessFactors  Platform = "successfactors"
	PlatformTaleo           Platform = "taleo"
	PlatformZenefits        Platform = "zenefits"
	PlatformApplicantStack  Platform = "applicantstack"
	PlatformRecruitee       Platform = "recruitee"
	PlatformPersonio        Platform = "personio"
	PlatformADP             Platform = "adp"
	PlatformPaycom          Platform = "paycom"
	PlatformUltiPro         Platform = "ultipro"
	PlatformAshby           Platform = "ashby"
	PlatformLinkedIn        Platform = "linkedin"
	PlatformIndeed          Platform = "indeed"
	PlatformUnknown         Platform = "unknown"
)

// Platforms is the registry of known applicant-tracking platforms.
var Platforms = []Platform{
	PlatformWorkday, PlatformGreenhouse, PlatformLever, PlatformBambooHR,
	PlatformSmartRecruiters, PlatformICIMS, PlatformJobvite, PlatformSuccessFactors,
	PlatformTaleo, PlatformZenefits, PlatformApplicantStack, PlatformRecruitee,
	PlatformPersonio, PlatformADP, PlatformPaycom, PlatformUltiPro, PlatformAshby,
	PlatformLinkedIn, PlatformIndeed,
}

// ParsePlatform maps free text onto the registry. Anything unrecognised is PlatformUnknown.
func ParsePlatform(raw string) Platform {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "", "-", "", "_", "", ".", "").Replace(s)
	if s == "" {
		return PlatformUnknown
	}
	for _, p := range Platforms {
		if s == string(p) {
			return p
		}
	}
	// "myworkdayjobs", "greenhouseio", "ultiprocom" ...
	for _, p := range Platforms {
		if len(p) >= 4 && strings.Contains(s, string(p)) {
			return p
		}
	}
	return PlatformUnknown
}
