package flags

import (
	"fmt"

	"github.com/spf13/pflag"
	"golang.org/x/exp/slices"

	"github.com/prospector-bot/prospector/cmd/util/output"
	"github.com/prospector-bot/prospector/pkg/models"
)

// A Parser is a function that can convert a string into a native object.
type Parser[T any] func(string) (T, error)

// A Stringer is a function that can convert a native object into a string.
type Stringer[T any] func(*T) string

// A ValueFlag is a pflag.Value that knows how to take a command line value
// represented as a string and set it as a native object into a struct.
type ValueFlag[T any] struct {
	// A pointer to a variable that will be set by this flag.
	value *T

	// A Parser to turn the command line string into a native value.
	parser Parser[T]

	// A Stringer to turn the default value for the flag back into a native
	// string, to be printed as help.
	stringer Stringer[T]

	// How the value should be described in the help string.
	typeStr string
}

// Set implements pflag.Value
func (s *ValueFlag[T]) Set(input string) error {
	value, err := s.parser(input)
	*s.value = value
	return err
}

// String implements pflag.Value
func (s *ValueFlag[T]) String() string {
	return s.stringer(s.value)
}

// Type implements pflag.Value
func (s *ValueFlag[T]) Type() string {
	return s.typeStr
}

var _ pflag.Value = (*ValueFlag[int])(nil)

func OutputFormatFlag(value *output.OutputFormat) *ValueFlag[output.OutputFormat] {
	return &ValueFlag[output.OutputFormat]{
		value: value,
		parser: func(s string) (output.OutputFormat, error) {
			o := output.OutputFormat(s)
			if !slices.Contains(output.AllFormats, o) {
				return "", fmt.Errorf("should be one of %q", output.AllFormats)
			}
			return o, nil
		},
		stringer: func(o *output.OutputFormat) string { return string(*o) },
		typeStr:  "format",
	}
}

func AgentTypeFlag(value *models.AgentType) *ValueFlag[models.AgentType] {
	return &ValueFlag[models.AgentType]{
		value: value,
		parser: func(s string) (models.AgentType, error) {
			t := models.ParseAgentType(s)
			if !models.IsValidAgentType(t) {
				return t, fmt.Errorf("should be one of %q", models.AgentTypeNames())
			}
			return t, nil
		},
		stringer: func(t *models.AgentType) string { return t.String() },
		typeStr:  "agent-type",
	}
}

func OutputFormatFlags(format *output.OutputOptions) *pflag.FlagSet {
	flagset := pflag.NewFlagSet("Output Format", pflag.ContinueOnError)

	flagset.Var(OutputFormatFlag(&format.Format), "output",
		fmt.Sprintf(`The output format for the command (one of %q)`, output.AllFormats))
	flagset.BoolVar(&format.Pretty, "pretty", format.Pretty,
		`Pretty print the output. Only applies to json and yaml output formats.`)
	flagset.BoolVar(&format.HideHeader, "hide-header", format.HideHeader,
		`do not print the column headers.`)
	flagset.BoolVar(&format.NoStyle, "no-style", format.NoStyle,
		`remove all styling from table output.`)
	flagset.BoolVar(&format.Wide, "wide", format.Wide,
		`Print full values in the table results`)

	return flagset
}
