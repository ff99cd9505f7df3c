package procedure

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// LoadDefinitions reads "name := body" definitions, one per line, into r.
// Blank lines and lines starting with '#' or ';' are skipped. Malformed
// lines are reported in the returned error but do not stop the load; the
// count of installed procedures is always returned. A definition whose
// name already exists replaces the stored one.
func LoadDefinitions(r *Repository, src io.Reader, typeCheck bool) (int, error) {
	return load(r, src, typeCheck, func(body string) (*Tree, error) {
		return Parse(body)
	})
}

// LoadSelectDefinitions reads "name := alt | alt | ..." definitions and
// installs each as select(alt alt ...), where the interpreter returns the
// first alternative that evaluates to a truthy value.
func LoadSelectDefinitions(r *Repository, src io.Reader, typeCheck bool) (int, error) {
	return load(r, src, typeCheck, func(body string) (*Tree, error) {
		sel := Node("select")
		for _, alt := range strings.Split(body, "|") {
			t, err := Parse(alt)
			if err != nil {
				return nil, err
			}
			sel.Children = append(sel.Children, t)
		}
		return sel, nil
	})
}

func load(r *Repository, src io.Reader, typeCheck bool, parse func(string) (*Tree, error)) (int, error) {
	var (
		count int
		errs  []error
		line  int
	)
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ";") {
			continue
		}
		name, body, ok := strings.Cut(text, ":=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			errs = append(errs, fmt.Errorf("line %d: expected \"name := body\"", line))
			continue
		}
		tree, err := parse(body)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d (%s): %w", line, name, err))
			continue
		}
		r.Remove(name)
		if err := r.Add(New(name, tree, typeCheck)); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return count, errors.Join(errs...)
}
