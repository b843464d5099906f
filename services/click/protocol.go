// Package click handles the signed prepare/complete webhook protocol.
package click

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	ActionPrepare  = 0
	ActionComplete = 1
)

const (
	CodeSuccess             = 0
	CodeSignFailed          = -1
	CodeIncorrectAmount     = -2
	CodeActionNotFound      = -3
	CodeAlreadyPaid         = -4
	CodeBookingNotFound     = -5
	CodeTransactionNotFound = -6
	CodeFailedToUpdate      = -7
	CodeBadRequest          = -8
	CodeCancelled           = -9
)

var codeNotes = map[int]string{
	CodeSuccess:             "Success",
	CodeSignFailed:          "SIGN CHECK FAILED!",
	CodeIncorrectAmount:     "Incorrect parameter amount",
	CodeActionNotFound:      "Action not found",
	CodeAlreadyPaid:         "Already paid",
	CodeBookingNotFound:     "Booking does not exist",
	CodeTransactionNotFound: "Transaction does not exist",
	CodeFailedToUpdate:      "Failed to update booking",
	CodeBadRequest:          "Error in request from click",
	CodeCancelled:           "Transaction cancelled",
}

// Request keeps the raw field values, since the signature covers them verbatim.
type Request struct {
	ClickTransID      string
	ServiceID         string
	ClickPaydocID     string
	MerchantTransID   string
	MerchantPrepareID string
	Amount            string
	Action            string
	Error             string
	ErrorNote         string
	SignTime          string
	SignString        string
}

func RequestFromForm(form url.Values) Request {
	return Request{
		ClickTransID:      form.Get("click_trans_id"),
		ServiceID:         form.Get("service_id"),
		ClickPaydocID:     form.Get("click_paydoc_id"),
		MerchantTransID:   form.Get("merchant_trans_id"),
		MerchantPrepareID: form.Get("merchant_prepare_id"),
		Amount:            form.Get("amount"),
		Action:            form.Get("action"),
		Error:             form.Get("error"),
		ErrorNote:         form.Get("error_note"),
		SignTime:          form.Get("sign_time"),
		SignString:        form.Get("sign_string"),
	}
}

// Form is the inverse of RequestFromForm.
func (r Request) Form() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("click_trans_id", r.ClickTransID)
	set("service_id", r.ServiceID)
	set("click_paydoc_id", r.ClickPaydocID)
	set("merchant_trans_id", r.MerchantTransID)
	set("merchant_prepare_id", r.MerchantPrepareID)
	set("amount", r.Amount)
	set("action", r.Action)
	set("error", r.Error)
	set("error_note", r.ErrorNote)
	set("sign_time", r.SignTime)
	set("sign_string", r.SignString)
	return v
}

// Sign computes the md5 signature the provider sends in sign_string.
func Sign(r Request, secret string) string {
	var b strings.Builder
	b.WriteString(r.ClickTransID)
	b.WriteString(r.ServiceID)
	b.WriteString(secret)
	b.WriteString(r.MerchantTransID)
	if r.Action == strconv.Itoa(ActionComplete) {
		b.WriteString(r.MerchantPrepareID)
	}
	b.WriteString(r.Amount)
	b.WriteString(r.Action)
	b.WriteString(r.SignTime)
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// VerifySignature compares in constant time.
func VerifySignature(r Request, secret string) bool {
	want := Sign(r, secret)
	got := strings.ToLower(strings.TrimSpace(r.SignString))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// parsed holds the typed view of a request after validation.
type parsed struct {
	clickTransID int64
	serviceID    int
	action       int
	errorCode    int
	amount       int64
	prepareID    int64
}

func parse(r Request) (parsed, error) {
	var p parsed
	var err error
	if r.ClickTransID == "" || r.MerchantTransID == "" || r.SignTime == "" || r.SignString == "" {
		return p, fmt.Errorf("missing required fields")
	}
	if p.clickTransID, err = strconv.ParseInt(r.ClickTransID, 10, 64); err != nil {
		return p, fmt.Errorf("invalid click_trans_id: %w", err)
	}
	if p.serviceID, err = strconv.Atoi(r.ServiceID); err != nil {
		return p, fmt.Errorf("invalid service_id: %w", err)
	}
	if p.action, err = strconv.Atoi(r.Action); err != nil {
		return p, fmt.Errorf("invalid action: %w", err)
	}
	if r.Error != "" {
		if p.errorCode, err = strconv.Atoi(r.Error); err != nil {
			return p, fmt.Errorf("invalid error: %w", err)
		}
	}
	if p.amount, err = ParseAmount(r.Amount); err != nil {
		return p, err
	}
	if r.MerchantPrepareID != "" {
		if p.prepareID, err = strconv.ParseInt(r.MerchantPrepareID, 10, 64); err != nil {
			return p, fmt.Errorf("invalid merchant_prepare_id: %w", err)
		}
	}
	return p, nil
}

// ParseAmount converts a decimal major-unit string such as "1000.50" into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" || len(frac) > 2 || strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || strings.ContainsAny(frac, "+-") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if major > (math.MaxInt64-minor)/100 {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return major*100 + minor, nil
}

// FormatAmount renders minor units the way the provider sends amounts.
func FormatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

type Response struct {
	ClickTransID      int64  `json:"click_trans_id"`
	MerchantTransID   string `json:"merchant_trans_id"`
	MerchantPrepareID int64  `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID int64  `json:"merchant_confirm_id,omitempty"`
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
}

func note(code int) string {
	if n, ok := codeNotes[code]; ok {
		return n
	}
	return "Unknown error"
}
