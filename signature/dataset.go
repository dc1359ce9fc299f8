package signature

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"bouncer/ipaddresses"

	yaml "gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDatasetYAML []byte

// ErrEmptyDataset is returned when a dataset has no fragments to match at all.
var ErrEmptyDataset = errors.New("signature dataset contains no fragments")

// Crawler is a search engine whose user agent may only be sent from its published ranges.
type Crawler struct {
	Name     string   `yaml:"name"`
	UATokens []string `yaml:"ua_tokens"`
	Ranges   []string `yaml:"ranges"`
}

// Dataset is the full set of signature and subnet tables used to classify requests.
// It is loaded once and then only read, so one value can be shared by all requests.
type Dataset struct {
	URIFragments        []string  `yaml:"uri_fragments"`
	UAPrefixes          []string  `yaml:"ua_prefixes"`
	UAFragments         []string  `yaml:"ua_fragments"`
	MartianRanges       []string  `yaml:"martian_ranges"`
	LocalRanges         []string  `yaml:"local_ranges"`
	Crawlers            []Crawler `yaml:"crawlers"`
	ViaSpam             []string  `yaml:"via_spam"`
	DiscontinuedTools   []string  `yaml:"discontinued_tools"`
	MobileIETokens      []string  `yaml:"mobile_ie_tokens"`
	TrustedProxyHeaders []string  `yaml:"trusted_proxy_headers"`
}

// FileSystem is the interface used to read dataset files.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
}

// FileSystemImpl reads dataset files from the local disk.
type FileSystemImpl struct{}

// ReadFile reads the whole named file.
func (fs *FileSystemImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// DefaultDataset returns a fresh copy of the dataset compiled into the binary.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultDatasetYAML)
}

// LoadDataset reads and validates the dataset at path. An empty path selects the default dataset.
func LoadDataset(fs FileSystem, path string) (ds *Dataset, err error) {
	if path == "" {
		return DefaultDataset()
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read signature dataset %v: %w", path, err)
		return
	}

	ds, err = ParseDataset(data)
	if err != nil {
		err = fmt.Errorf("failed to load signature dataset %v: %w", path, err)
	}
	return
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(data []byte) (ds *Dataset, err error) {
	ds = &Dataset{}
	if err = yaml.Unmarshal(data, ds); err != nil {
		return nil, err
	}

	if err = ds.Validate(); err != nil {
		return nil, err
	}

	return
}

// Validate checks that every fragment is non-empty and every range parses.
func (ds *Dataset) Validate() error {
	if len(ds.URIFragments)+len(ds.UAPrefixes)+len(ds.UAFragments) == 0 {
		return ErrEmptyDataset
	}

	lists := map[string][]string{
		"uri_fragments":         ds.URIFragments,
		"ua_prefixes":           ds.UAPrefixes,
		"ua_fragments":          ds.UAFragments,
		"via_spam":              ds.ViaSpam,
		"discontinued_tools":    ds.DiscontinuedTools,
		"mobile_ie_tokens":      ds.MobileIETokens,
		"trusted_proxy_headers": ds.TrustedProxyHeaders,
	}
	for name, list := range lists {
		for i, fragment := range list {
			if fragment == "" {
				return fmt.Errorf("%v[%d] is empty", name, i)
			}
		}
	}

	if err := validateRanges("martian_ranges", ds.MartianRanges); err != nil {
		return err
	}
	if err := validateRanges("local_ranges", ds.LocalRanges); err != nil {
		return err
	}

	for _, c := range ds.Crawlers {
		if c.Name == "" {
			return errors.New("crawler without a name")
		}
		if len(c.UATokens) == 0 {
			return fmt.Errorf("crawler %v has no ua_tokens", c.Name)
		}
		for i, token := range c.UATokens {
			if token == "" {
				return fmt.Errorf("crawler %v ua_tokens[%d] is empty", c.Name, i)
			}
		}
		if err := validateRanges("crawler "+c.Name+" ranges", c.Ranges); err != nil {
			return err
		}
	}

	return nil
}

func validateRanges(name string, ranges []string) error {
	for _, r := range ranges {
		if !ipaddresses.ValidSubnet(r) {
			return fmt.Errorf("%v: invalid subnet %q", name, r)
		}
	}
	return nil
}
