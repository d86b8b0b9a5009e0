// Copyright (C) The rsempipeline Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package transfer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// LedgerBasename is the transfer record kept under the local top
// output directory.
const LedgerBasename = "transferred_GSMs.txt"

// A Ledger is the append-only record of sample keys that have been
// transferred successfully. A key present in the ledger is
// permanently excluded from future transfer admission, regardless of
// the remote directory's current contents. Entries are never
// rewritten, reordered, or retracted.
type Ledger struct {
	Path string
}

// Transferred returns the set of recorded keys. A ledger file that
// does not exist yet is an empty ledger, not an error.
func (l *Ledger) Transferred() (map[string]bool, error) {
	f, err := os.Open(l.Path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	keys := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Append records the given keys, preceded by a timestamp comment
// line.
func (l *Ledger) Append(keys []string) error {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "# %s\n", time.Now().Format("06-01-02 15:04:05")); err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := fmt.Fprintln(f, key); err != nil {
			return err
		}
	}
	return nil
}
