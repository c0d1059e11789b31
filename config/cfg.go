package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"github.com/ByLCY/storybook/layout"
)

// AppName is used for logger naming and auxiliary file names.
const AppName = "storybook"

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	PageConfig struct {
		Size   string   `yaml:"size" validate:"required"`
		Margin []string `yaml:"margin" validate:"min=1,max=4,dive,required"`
	}

	TypographyConfig struct {
		BodyFont       []string `yaml:"body_font"`
		BodyStyle      string   `yaml:"body_style,omitempty"`
		TitleFont      []string `yaml:"title_font"`
		TitleStyle     string   `yaml:"title_style,omitempty"`
		FontSize       string   `yaml:"font_size" validate:"required"`
		LineHeight     string   `yaml:"line_height" validate:"required"`
		Indent         string   `yaml:"indent"`
		TitleFontSize  string   `yaml:"title_font_size" validate:"required"`
		AuthorFontSize string   `yaml:"author_font_size" validate:"required"`
		FooterFontSize string   `yaml:"footer_font_size" validate:"required"`
	}

	IllustrationsConfig struct {
		Cadence   int    `yaml:"cadence" validate:"min=1"`
		Width     string `yaml:"width" validate:"required"`
		Height    string `yaml:"height" validate:"required"`
		MinSpace  string `yaml:"min_space"`
		OnFailure string `yaml:"on_failure" validate:"oneof=placeholder skip"`
		DPI       int    `yaml:"dpi" validate:"min=72,max=1200"`
	}

	LabelsConfig struct {
		Author      string `yaml:"author"`
		Header      string `yaml:"header"`
		Footer      string `yaml:"footer"`
		Placeholder string `yaml:"placeholder"`
		CoverTitle  bool   `yaml:"cover_title"`
	}

	MetaConfig struct {
		Subject  string   `yaml:"subject"`
		Creator  string   `yaml:"creator"`
		Keywords []string `yaml:"keywords"`
	}

	DocumentConfig struct {
		Backend            string              `yaml:"backend" validate:"oneof=canvas fpdf"`
		CoreFont           string              `yaml:"core_font" validate:"omitempty,oneof=Helvetica Times Courier"`
		Profile            string              `yaml:"profile" sanitize:"assure_file_access"`
		OutputNameTemplate string              `yaml:"output_name_template"`
		Page               PageConfig          `yaml:"page"`
		Typography         TypographyConfig    `yaml:"typography"`
		Illustrations      IllustrationsConfig `yaml:"illustrations"`
		Labels             LabelsConfig        `yaml:"labels"`
		Meta               MetaConfig          `yaml:"meta"`
	}

	Config struct {
		Version  int            `yaml:"version" validate:"eq=1"`
		Document DocumentConfig `yaml:"document"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

const (
	// NOTE: must match yaml field names above, these hold ${...} placeholders
	// resolved at layout time and must not be expanded from environment
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
	AuthorLabelFieldName        TemplateFieldName = "author"
	HeaderLabelFieldName        TemplateFieldName = "header"
	FooterLabelFieldName        TemplateFieldName = "footer"
	PlaceholderLabelFieldName   TemplateFieldName = "placeholder"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
	gencfg.WithDoNotExpandField(string(AuthorLabelFieldName)),
	gencfg.WithDoNotExpandField(string(HeaderLabelFieldName)),
	gencfg.WithDoNotExpandField(string(FooterLabelFieldName)),
	gencfg.WithDoNotExpandField(string(PlaceholderLabelFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// Settings converts document configuration into layout settings. Lengths
// are parsed here so that configuration errors are reported before any work
// is done.
func (d *DocumentConfig) Settings() (layout.Settings, error) {
	s := layout.DefaultSettings()
	g := &s.Geometry

	w, h, err := layout.ParsePageSize(d.Page.Size)
	if err != nil {
		return s, fmt.Errorf("page.size: %w", err)
	}
	g.PageWidth, g.PageHeight = w, h
	if g.Margin, err = layout.ParseMargin(d.Page.Margin); err != nil {
		return s, fmt.Errorf("page.margin: %w", err)
	}

	t := d.Typography
	lengths := []struct {
		name  string
		value string
		dst   *float64
	}{
		{"typography.font_size", t.FontSize, &g.FontSize},
		{"typography.indent", t.Indent, &g.Indent},
		{"typography.title_font_size", t.TitleFontSize, &g.TitleFontSize},
		{"typography.author_font_size", t.AuthorFontSize, &g.AuthorFontSize},
		{"typography.footer_font_size", t.FooterFontSize, &g.FooterFontSize},
		{"illustrations.width", d.Illustrations.Width, &g.IllustrationWidth},
		{"illustrations.height", d.Illustrations.Height, &g.IllustrationHeight},
		{"illustrations.min_space", d.Illustrations.MinSpace, &g.MinSpace},
	}
	for _, l := range lengths {
		if l.value == "" {
			continue
		}
		v, err := layout.ParseLength(l.value)
		if err != nil {
			return s, fmt.Errorf("%s: %w", l.name, err)
		}
		*l.dst = v.ToMM()
	}
	lh, err := layout.ParseLineHeight(t.LineHeight)
	if err != nil {
		return s, fmt.Errorf("typography.line_height: %w", err)
	}
	g.LineHeight = lh.Resolve(g.FontSize)

	g.Cadence = d.Illustrations.Cadence
	g.OnFailure = d.Illustrations.OnFailure

	if len(t.BodyFont) > 0 {
		s.Fonts.Body.Sources = append([]string(nil), t.BodyFont...)
	}
	s.Fonts.Body.Style = t.BodyStyle
	if len(t.TitleFont) > 0 {
		s.Fonts.Title.Sources = append([]string(nil), t.TitleFont...)
	}
	s.Fonts.Title.Style = t.TitleStyle

	s.Labels = layout.Labels{
		Author:      d.Labels.Author,
		Header:      d.Labels.Header,
		Footer:      d.Labels.Footer,
		Placeholder: d.Labels.Placeholder,
		CoverTitle:  d.Labels.CoverTitle,
	}
	s.Meta = layout.DocumentMeta{
		Subject:  d.Meta.Subject,
		Creator:  d.Meta.Creator,
		Keywords: append([]string(nil), d.Meta.Keywords...),
	}
	return s, nil
}
