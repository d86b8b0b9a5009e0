// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is an int64 number of bytes. In YAML/JSON configuration it
// accepts plain numbers, including scientific notation (3e9), and
// human-friendly strings like "500 GiB".
type ByteSize int64

func (n *ByteSize) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '"' {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		if f < math.MinInt64 || f > math.MaxInt64 {
			return fmt.Errorf("size %s overflows int64", data)
		}
		*n = ByteSize(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %s", s, err)
	}
	if v > math.MaxInt64 {
		return fmt.Errorf("size %q overflows int64", s)
	}
	*n = ByteSize(v)
	return nil
}

func (n ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(n))
}
