// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package plan

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// Format is the document format of a plan.
type Format int

const (
	// YAML plans are YAML documents.
	YAML Format = iota
	// HCL plans use HashiCorp configuration language syntax.
	HCL
)

var formats = [...]string{
	YAML: "yaml",
	HCL:  "hcl",
}

// String returns the format's name.
func (f Format) String() string {
	if f < 0 || int(f) >= len(formats) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formats[f]
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".hcl":
		return HCL, nil
	default:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("plan: %s: unrecognized extension", path))
	}
}

// Load reads the plan at path. Its format is determined by the
// path's extension.
func Load(path string) (*Plan, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("plan: read %s", path), err)
	} else if err != nil {
		return nil, errors.E(fmt.Sprintf("plan: read %s", path), err)
	}
	return Parse(data, path, format)
}

// Parse parses the plan in data. The provided filename is used only
// in error messages.
func Parse(data []byte, filename string, format Format) (*Plan, error) {
	p := new(Plan)
	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(p); err != nil && err != io.EOF {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("plan: parse %s", filename), err)
		}
	case HCL:
		file, diags := hclparse.NewParser().ParseHCL(data, filename)
		if diags.HasErrors() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("plan: parse %s", filename), diags)
		}
		if diags := gohcl.DecodeBody(file.Body, nil, p); diags.HasErrors() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("plan: decode %s", filename), diags)
		}
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("plan: format %d", format))
	}
	return p, nil
}
