package model

import "testing"

func TestCertificateType_IsValid(t *testing.T) {
	for _, tc := range []struct {
		typ  CertificateType
		want bool
	}{
		{TypeEICR, true},
		{TypeEIC, true},
		{CertificateType(""), false},
		{CertificateType("eicr"), false},
	} {
		if got := tc.typ.IsValid(); got != tc.want {
			t.Errorf("CertificateType(%q).IsValid() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}

func TestAssessment_IsValid(t *testing.T) {
	for _, tc := range []struct {
		a    Assessment
		want bool
	}{
		{AssessmentNone, true},
		{AssessmentSatisfactory, true},
		{AssessmentUnsatisfactory, true},
		{Assessment("ok"), false},
	} {
		if got := tc.a.IsValid(); got != tc.want {
			t.Errorf("Assessment(%q).IsValid() = %v, want %v", tc.a, got, tc.want)
		}
	}
}

func TestSignatureRecord_Valid(t *testing.T) {
	for _, tc := range []struct {
		name string
		rec  *SignatureRecord
		want bool
	}{
		{"Nil", nil, false},
		{"Empty", &SignatureRecord{}, false},
		{"BlankName", &SignatureRecord{Name: "   ", Signature: "sig"}, false},
		{"NoSignature", &SignatureRecord{Name: "J SMITH"}, false},
		{"Valid", &SignatureRecord{Name: "J SMITH", Signature: "sig"}, true},
		{"ValidWithPadding", &SignatureRecord{Name: " J SMITH ", Signature: "sig"}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSignatureRecord_Clone(t *testing.T) {
	var nilRec *SignatureRecord
	if nilRec.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
	orig := &SignatureRecord{Name: "J SMITH", Signature: "sig"}
	c := orig.Clone()
	c.Name = "CHANGED"
	if orig.Name != "J SMITH" {
		t.Error("Clone should not alias the original")
	}
}

func TestValidateSignature(t *testing.T) {
	err := ValidateSignature("inspected_by", SignatureRecord{Name: " "})
	errs := fieldErrors(t, err)
	if !hasFieldError(errs, "inspected_by.name") || !hasFieldError(errs, "inspected_by.signature") {
		t.Errorf("expected name and signature errors, got %v", errs)
	}
	if err := ValidateSignature("authorised_by", SignatureRecord{Name: "A JONES", Signature: "sig2"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCertificate_Signed(t *testing.T) {
	c := Certificate{InspectedBy: &SignatureRecord{Name: "J SMITH", Signature: "sig1"}}
	if c.Signed() {
		t.Error("Signed() should be false with only one signature")
	}
	c.AuthorisedBy = &SignatureRecord{Name: "A JONES", Signature: "sig2"}
	if !c.Signed() {
		t.Error("Signed() should be true with both signatures")
	}
}
