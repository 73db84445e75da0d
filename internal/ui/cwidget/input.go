package cwidget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

var (
	ErrNotPositive = errors.New("must be greater than zero")
	ErrOutOfRange  = errors.New("must be between 0 and 100")
)

// Input is a labelled entry that parses its text into T. The label shows the
// last accepted value; rejected text leaves it unchanged and shows the error
// under the entry.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	OnChanged func(T)

	Validator func(string) (T, error)
	Format    func(T) string
}

func newInput[T any](label, placeholder string, defaultValue T, onChanged func(T)) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		OnChanged:    onChanged,
		DefaultValue: defaultValue,
		Format:       func(v T) string { return fmt.Sprint(v) },
	}

	input.labelWidget = widget.NewLabel("")
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		input.submit(s)
	}

	input.ExtendBaseWidget(input)

	return input
}

func (item *Input[T]) submit(s string) (T, error) {
	res, err := item.Validator(s)
	item.SetError(err)

	if err == nil {
		if item.OnChanged != nil {
			item.OnChanged(res)
		}
		item.showValue(res)
	}
	return res, err
}

func (item *Input[T]) showValue(v T) {
	item.labelWidget.SetText(fmt.Sprintf("%s: %s", item.LabelText, item.Format(v)))
}

func NewIntInput(label, placeholder string, defaultValue int, onChanged func(int)) *Input[int] {
	input := newInput(label, placeholder, defaultValue, onChanged)
	input.Validator = func(s string) (int, error) {
		return ParsePositiveInt(s, input.DefaultValue)
	}
	input.showValue(defaultValue)
	return input
}

// NewPercentInput edits a [0, 1] fraction as a percentage.
func NewPercentInput(label, placeholder string, defaultValue float64, onChanged func(float64)) *Input[float64] {
	input := newInput(label, placeholder, defaultValue, onChanged)
	input.Validator = func(s string) (float64, error) {
		return ParsePercent(s, input.DefaultValue)
	}
	input.Format = func(v float64) string {
		return strconv.FormatFloat(v*100, 'f', 0, 64) + "%"
	}
	input.showValue(defaultValue)
	return input
}

// ParsePositiveInt returns def for empty text.
func ParsePositiveInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}

	res, err := strconv.Atoi(s)
	if err != nil {
		return def, fmt.Errorf("not an integer: %q", s)
	}
	if res <= 0 {
		return def, ErrNotPositive
	}
	return res, nil
}

// ParsePercent reads "40" or "40%" as 0.4. Empty text gives def.
func ParsePercent(s string, def float64) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def, fmt.Errorf("not a number: %q", s)
	}
	if v < 0 || v > 100 {
		return def, ErrOutOfRange
	}
	return v / 100, nil
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}
