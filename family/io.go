package family

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseTable reads a gene-family table. Two shapes are accepted: a
// column table with a header line (description and id columns followed
// by one column per taxon), and the row shape produced by the
// simulator (leading #taxon lines, then per family one line of counts
// whose trailing token is the family id).
func ParseTable(rd io.Reader) ([]*Family, error) {
	br := bufio.NewReader(rd)
	b, err := br.Peek(1)
	if err != nil {
		return nil, errors.New("empty gene-family table")
	}
	if b[0] == '#' {
		return parseRows(br)
	}
	return parseColumns(br)
}

func parseColumns(rd io.Reader) ([]*Family, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, errors.New("empty gene-family table")
	}
	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	if len(header) < 3 {
		return nil, errors.New("gene-family table header needs at least three columns")
	}
	taxa := header[2:]

	var fams []*Family
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r\n")
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d",
				line, len(fields), len(header))
		}
		f := NewFamily(fields[1], fields[0])
		for i, taxon := range taxa {
			c, err := strconv.Atoi(strings.TrimSpace(fields[i+2]))
			if err != nil {
				return nil, fmt.Errorf("line %d: bad size for %s: %v", line, taxon, err)
			}
			if c < 0 {
				return nil, fmt.Errorf("line %d: negative size for %s", line, taxon)
			}
			f.SetCount(taxon, c)
		}
		fams = append(fams, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(fams) == 0 {
		return nil, errors.New("gene-family table has no families")
	}
	return fams, nil
}

func parseRows(rd io.Reader) ([]*Family, error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var taxa []string
	var fams []*Family
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if len(fams) > 0 {
				return nil, fmt.Errorf("line %d: taxon header after data", line)
			}
			taxa = append(taxa, strings.TrimSpace(text[1:]))
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != len(taxa)+1 {
			return nil, fmt.Errorf("line %d: %d fields for %d taxa",
				line, len(fields), len(taxa))
		}
		f := NewFamily(fields[len(fields)-1], "")
		for i, taxon := range taxa {
			c, err := strconv.Atoi(fields[i])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad size for %s: %v", line, taxon, err)
			}
			f.SetCount(taxon, c)
		}
		fams = append(fams, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(fams) == 0 {
		return nil, errors.New("gene-family table has no families")
	}
	log.Debugf("row-shape table: %d taxa, %d families", len(taxa), len(fams))
	return fams, nil
}

// WriteRows writes families in the row shape: one #taxon line per
// name, then per family the counts and the family id.
func WriteRows(w io.Writer, taxa []string, fams []*Family) error {
	bw := bufio.NewWriter(w)
	for _, taxon := range taxa {
		fmt.Fprintf(bw, "#%s\n", taxon)
	}
	for _, f := range fams {
		for _, taxon := range taxa {
			c, err := f.Count(taxon)
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "%d\t", c)
		}
		fmt.Fprintf(bw, "%s\n", f.ID)
	}
	return bw.Flush()
}

// WriteColumns writes families as a column table.
func WriteColumns(w io.Writer, taxa []string, fams []*Family) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "Desc\tFamily ID")
	for _, taxon := range taxa {
		fmt.Fprintf(bw, "\t%s", taxon)
	}
	fmt.Fprintln(bw)
	for _, f := range fams {
		fmt.Fprintf(bw, "%s\t%s", f.Desc, f.ID)
		for _, taxon := range taxa {
			c, err := f.Count(taxon)
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "\t%d", c)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
