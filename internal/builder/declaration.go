package builder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/pdf"
)

// Kind tags a declaration.
type Kind string

const (
	KindParam       Kind = "param"
	KindConst       Kind = "const"
	KindProduct     Kind = "product"
	KindSum         Kind = "sum"
	KindGaussian    Kind = "gaussian"
	KindCrystalBall Kind = "cbshape"
	KindChebychev   Kind = "chebychev"
	KindPolynomial  Kind = "polynomial"
	KindJohnson     Kind = "johnson"
	KindAdd         Kind = "add"
)

// ObservableDecl declares the fitted variable and its range.
type ObservableDecl struct {
	Name  string  `toml:"name" yaml:"name" validate:"required"`
	Title string  `toml:"title,omitempty" yaml:"title,omitempty"`
	Unit  string  `toml:"unit,omitempty" yaml:"unit,omitempty"`
	Min   float64 `toml:"min" yaml:"min"`
	Max   float64 `toml:"max" yaml:"max" validate:"gtfield=Min"`
}

// Decl is one named declaration. Args lists the referenced names in the
// order the kind expects:
//
//	param, const     none; Value (and Min, Max for param)
//	product, sum     the factors or terms
//	gaussian         mean, sigma
//	cbshape          mean, sigma, alpha, n
//	chebychev        coefficients for T_1 upwards
//	polynomial       coefficients for x^1 upwards
//	johnson          mu, lambda, gamma, delta
//	add              components, with Coefs holding fractions or yields
type Decl struct {
	Kind  Kind     `toml:"kind" yaml:"kind" validate:"required,oneof=param const product sum gaussian cbshape chebychev polynomial johnson add"`
	Name  string   `toml:"name" yaml:"name" validate:"required"`
	Value float64  `toml:"value,omitempty" yaml:"value,omitempty"`
	Min   *float64 `toml:"min,omitempty" yaml:"min,omitempty"`
	Max   *float64 `toml:"max,omitempty" yaml:"max,omitempty"`
	Args  []string `toml:"args,omitempty" yaml:"args,omitempty" validate:"dive,required"`
	Coefs []string `toml:"coefs,omitempty" yaml:"coefs,omitempty" validate:"dive,required"`
}

// Declaration is a complete model: the observable, declarations in
// dependency order, and the name of the extended root density.
type Declaration struct {
	Observable ObservableDecl `toml:"observable" yaml:"observable" validate:"required"`
	Root       string         `toml:"root" yaml:"root" validate:"required"`
	Items      []Decl         `toml:"decl" yaml:"decl" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the declaration's structure without resolving references.
func (d Declaration) Validate() error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	for _, item := range d.Items {
		for _, v := range []*float64{&item.Value, item.Min, item.Max} {
			if v != nil && math.IsNaN(*v) {
				return fmt.Errorf("%s: %w: NaN", item.Name, model.ErrBounds)
			}
		}
		if item.Kind == KindConst && math.IsInf(item.Value, 0) {
			return fmt.Errorf("%s: %w: infinite constant", item.Name, model.ErrBounds)
		}
		if err := checkArity(item); err != nil {
			return fmt.Errorf("%s: %w", item.Name, err)
		}
		for _, a := range append(append([]string(nil), item.Args...), item.Coefs...) {
			if a == item.Name {
				return fmt.Errorf("%s refers to itself", item.Name)
			}
		}
	}
	return nil
}

func checkArity(item Decl) error {
	want := -1
	switch item.Kind {
	case KindParam, KindConst:
		want = 0
	case KindGaussian:
		want = 2
	case KindCrystalBall, KindJohnson:
		want = 4
	case KindProduct, KindSum, KindAdd:
		if len(item.Args) == 0 {
			return fmt.Errorf("%s needs at least one argument", item.Kind)
		}
	}
	if want >= 0 && len(item.Args) != want {
		return fmt.Errorf("%s takes %d arguments, got %d", item.Kind, want, len(item.Args))
	}
	if item.Kind != KindAdd && len(item.Coefs) > 0 {
		return fmt.Errorf("%s takes no coefficients", item.Kind)
	}
	return nil
}

// FromDeclaration validates d and replays it through a Builder in order.
func FromDeclaration(d Declaration) (*pdf.Model, error) {
	if err := d.Validate(); err != nil {
		return nil, model.ConfigurationError("validate declaration", err)
	}
	obs, err := pdf.NewObservable(d.Observable.Name, d.Observable.Min, d.Observable.Max)
	if err != nil {
		return nil, model.ConfigurationError("validate declaration", err)
	}
	if d.Observable.Title != "" {
		obs.Title = d.Observable.Title
	}
	obs.Unit = d.Observable.Unit

	b := New(obs)
	for _, item := range d.Items {
		apply(b, item)
	}
	return b.Build(d.Root)
}

func apply(b *Builder, item Decl) {
	switch item.Kind {
	case KindParam:
		lo, hi := math.Inf(-1), math.Inf(1)
		if item.Min != nil {
			lo = *item.Min
		}
		if item.Max != nil {
			hi = *item.Max
		}
		b.Param(item.Name, item.Value, lo, hi)
	case KindConst:
		b.Const(item.Name, item.Value)
	case KindProduct:
		b.Product(item.Name, item.Args...)
	case KindSum:
		b.SumOf(item.Name, item.Args...)
	case KindGaussian:
		b.Gaussian(item.Name, item.Args[0], item.Args[1])
	case KindCrystalBall:
		b.CrystalBall(item.Name, item.Args[0], item.Args[1], item.Args[2], item.Args[3])
	case KindChebychev:
		b.Chebychev(item.Name, item.Args...)
	case KindPolynomial:
		b.Polynomial(item.Name, item.Args...)
	case KindJohnson:
		b.Johnson(item.Name, item.Args[0], item.Args[1], item.Args[2], item.Args[3])
	case KindAdd:
		b.Add(item.Name, item.Args, item.Coefs)
	}
}

// Load reads a declaration from a TOML or YAML file, chosen by extension.
func Load(path string) (Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Declaration{}, model.IOError("read model", path, err)
	}
	var d Declaration
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
			return Declaration{}, model.ConfigurationError("decode model", fmt.Errorf("%s: %w", path, err))
		}
	default:
		meta, err := toml.Decode(string(data), &d)
		if err != nil {
			return Declaration{}, model.ConfigurationError("decode model", fmt.Errorf("%s: %w", path, err))
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Declaration{}, model.ConfigurationError("decode model", fmt.Errorf("%s: unknown key %s", path, undecoded[0]))
		}
	}
	return d, nil
}

// Encode writes d as TOML.
func Encode(w io.Writer, d Declaration) error {
	return toml.NewEncoder(w).Encode(d)
}

// Override replaces parts of a parameter declaration. Nil fields keep the
// declared value; Fixed turns the parameter into a constant.
type Override struct {
	Value *float64
	Min   *float64
	Max   *float64
	Fixed bool
}

// Overrides maps parameter names to their replacements.
type Overrides map[string]Override

// Reference returns the D0 mass model: a Crystal Ball and a Gaussian sharing
// a mean over a second-order Chebychev background, with extended yields.
func Reference() Declaration {
	return Declaration{
		Observable: ObservableDecl{Name: "D0_LoKi_DTF_M", Title: "m(D0)", Unit: "MeV", Min: 1805, Max: 1925},
		Root:       "model",
		Items: []Decl{
			param("frac", 0.5, 0, 1),
			param("s", 10, 8, 12),
			{Kind: KindProduct, Name: "sigma", Args: []string{"frac", "s"}},
			param("f", 1.7, 0, 3),
			{Kind: KindProduct, Name: "sigma1", Args: []string{"sigma", "f"}},
			param("a1", 0, -0.2, 0.2),
			param("a2", 0, -0.2, 0.2),
			{Kind: KindConst, Name: "alpha", Value: 3},
			param("n", 3, 1.5, 10),
			param("mean", 1865, 1850, 1870),
			{Kind: KindGaussian, Name: "sig2", Args: []string{"mean", "sigma1"}},
			{Kind: KindCrystalBall, Name: "sig1", Args: []string{"mean", "sigma", "alpha", "n"}},
			{Kind: KindChebychev, Name: "bkg", Args: []string{"a1", "a2"}},
			{Kind: KindAdd, Name: "sig", Args: []string{"sig1", "sig2"}, Coefs: []string{"frac"}},
			param("nsig", 10e6, 5e6, 15e6),
			param("nbkg", 5e6, 2e6, 15e6),
			{Kind: KindAdd, Name: "model", Args: []string{"sig", "bkg"}, Coefs: []string{"nsig", "nbkg"}},
		},
	}
}

// ReferenceWith returns the reference model with parameter overrides applied.
func ReferenceWith(o Overrides) (Declaration, error) {
	return Reference().With(o)
}

// With returns a copy of d with parameter overrides applied. Every overridden
// name must be a declared param or const.
func (d Declaration) With(o Overrides) (Declaration, error) {
	out := d
	out.Items = make([]Decl, len(d.Items))
	copy(out.Items, d.Items)
	seen := make(map[string]bool, len(o))
	for i, item := range out.Items {
		ov, ok := o[item.Name]
		if !ok {
			continue
		}
		if item.Kind != KindParam && item.Kind != KindConst {
			return Declaration{}, model.ConfigurationError("override", fmt.Errorf("%s is a %s, not a parameter", item.Name, item.Kind))
		}
		seen[item.Name] = true
		if ov.Value != nil {
			item.Value = *ov.Value
		}
		if ov.Min != nil {
			item.Min = ptr(*ov.Min)
		}
		if ov.Max != nil {
			item.Max = ptr(*ov.Max)
		}
		if ov.Fixed {
			item.Kind = KindConst
			item.Min, item.Max = nil, nil
		}
		out.Items[i] = item
	}
	for name := range o {
		if !seen[name] {
			return Declaration{}, model.ConfigurationError("override", fmt.Errorf("%w: parameter %s", model.ErrUndeclared, name))
		}
	}
	return out, nil
}

func param(name string, value, min, max float64) Decl {
	return Decl{Kind: KindParam, Name: name, Value: value, Min: ptr(min), Max: ptr(max)}
}

func ptr(v float64) *float64 { return &v }

// Ptr returns a pointer to v, for building Overrides.
func Ptr(v float64) *float64 { return ptr(v) }
