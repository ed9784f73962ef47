// internal/response/result.go
package response

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind identifies one of the reply formats the firmware can emit
type Kind string

const (
	KindGPIOOutput Kind = "GPIO_OUTPUT"
	KindGPIOInput  Kind = "GPIO_INPUT"
	KindPWMOutput  Kind = "PWM_OUTPUT"
	KindDACOutput  Kind = "DAC_OUTPUT"
	KindADCInput   Kind = "ADC_INPUT"
	KindGenSignal  Kind = "GEN_SIGNAL"
	KindClosedLoop Kind = "CLOSED_LOOP"
	KindRaw        Kind = "RAW"
)

// StatusOK is the status token of a reply that reports success
const StatusOK = "OK"

// Result is a decoded reply. Exactly one concrete variant exists per Kind.
type Result interface {
	Kind() Kind
	// StatusToken returns the STATUS field of the reply. Raw results have none.
	StatusToken() string
}

// GPIOOutput acknowledges a digital output write
type GPIOOutput struct {
	Pin    int    `json:"pin"`
	Status string `json:"status"`
}

// GPIOInput carries a digital input reading
type GPIOInput struct {
	Pin    int    `json:"pin"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

// PWMOutput acknowledges a PWM duty change
type PWMOutput struct {
	Pin    int    `json:"pin"`
	Status string `json:"status"`
}

// DACOutput acknowledges a DAC write
type DACOutput struct {
	Pin    int    `json:"pin"`
	Status string `json:"status"`
}

// ADCInput carries an analog reading
type ADCInput struct {
	Pin    int    `json:"pin"`
	Value  int    `json:"value"`
	Status string `json:"status"`
}

// GenSignal acknowledges a generated signal; Value keeps the exact decimal text
type GenSignal struct {
	SignalType int             `json:"signal_type"`
	Value      decimal.Decimal `json:"value"`
	Status     string          `json:"status"`
}

// ClosedLoop acknowledges a closed-loop controller command
type ClosedLoop struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// Raw is the fallback for a RESPONSE line that matched no template
type Raw struct {
	Text string `json:"text"`
}

func (GPIOOutput) Kind() Kind { return KindGPIOOutput }
func (GPIOInput) Kind() Kind  { return KindGPIOInput }
func (PWMOutput) Kind() Kind  { return KindPWMOutput }
func (DACOutput) Kind() Kind  { return KindDACOutput }
func (ADCInput) Kind() Kind   { return KindADCInput }
func (GenSignal) Kind() Kind  { return KindGenSignal }
func (ClosedLoop) Kind() Kind { return KindClosedLoop }
func (Raw) Kind() Kind        { return KindRaw }

func (r GPIOOutput) StatusToken() string { return r.Status }
func (r GPIOInput) StatusToken() string  { return r.Status }
func (r PWMOutput) StatusToken() string  { return r.Status }
func (r DACOutput) StatusToken() string  { return r.Status }
func (r ADCInput) StatusToken() string   { return r.Status }
func (r GenSignal) StatusToken() string  { return r.Status }
func (r ClosedLoop) StatusToken() string { return r.Status }
func (Raw) StatusToken() string          { return "" }

// wireValues renders field values in template order for Encode
func (r GPIOOutput) wireValues() []string { return []string{strconv.Itoa(r.Pin), r.Status} }
func (r GPIOInput) wireValues() []string {
	return []string{strconv.Itoa(r.Pin), r.Value, r.Status}
}
func (r PWMOutput) wireValues() []string { return []string{strconv.Itoa(r.Pin), r.Status} }
func (r DACOutput) wireValues() []string { return []string{strconv.Itoa(r.Pin), r.Status} }
func (r ADCInput) wireValues() []string {
	return []string{strconv.Itoa(r.Pin), strconv.Itoa(r.Value), r.Status}
}
func (r GenSignal) wireValues() []string {
	return []string{strconv.Itoa(r.SignalType), r.Value.String(), r.Status}
}
func (r ClosedLoop) wireValues() []string { return []string{strconv.Itoa(r.ID), r.Status} }
