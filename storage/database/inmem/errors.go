package inmemdb

import "fmt"

// errMissingRow mimics a foreign key violation.
func errMissingRow(what string) error {
	return fmt.Errorf("inmemdb: referenced %s does not exist", what)
}
