// Package pdf defines the observable, parameters and probability densities
// a mass model is composed of.
package pdf

import "fmt"

// Observable is the single measured quantity a model is defined over.
type Observable struct {
	Name  string
	Title string
	Unit  string
	Min   float64
	Max   float64
}

// NewObservable returns an observable bounded to [min, max].
func NewObservable(name string, min, max float64) (*Observable, error) {
	if name == "" {
		return nil, fmt.Errorf("observable name is empty")
	}
	if !(min < max) {
		return nil, fmt.Errorf("observable %s: range [%g, %g] is empty", name, min, max)
	}
	return &Observable{Name: name, Title: name, Min: min, Max: max}, nil
}

// Contains reports whether x lies in the observable range.
func (o *Observable) Contains(x float64) bool {
	return x >= o.Min && x <= o.Max
}

// Width returns the length of the observable range.
func (o *Observable) Width() float64 {
	return o.Max - o.Min
}

// Label returns the axis label of the observable.
func (o *Observable) Label() string {
	if o.Unit == "" {
		return o.Title
	}
	return fmt.Sprintf("%s [%s]", o.Title, o.Unit)
}
