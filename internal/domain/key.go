package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SubmissionKey is the round-scoped composite key "<roundId>:<songId>" that guesses use to reference a submission.
// Song IDs alone are not unique across rounds.
type SubmissionKey string

func NewSubmissionKey(roundID int, songID string) SubmissionKey {
	return SubmissionKey(strconv.Itoa(roundID) + ":" + songID)
}

// Parse splits the key into its round and song parts.
func (k SubmissionKey) Parse() (roundID int, songID string, err error) {
	r, s, ok := strings.Cut(string(k), ":")
	if !ok || s == "" {
		return 0, "", fmt.Errorf("submission key %q: missing song id", string(k))
	}

	roundID, err = strconv.Atoi(r)
	if err != nil || roundID < 0 {
		return 0, "", fmt.Errorf("submission key %q: invalid round id", string(k))
	}

	return roundID, s, nil
}

// Round returns the round part of the key, or -1 when the key is malformed.
func (k SubmissionKey) Round() int {
	r, _, err := k.Parse()
	if err != nil {
		return -1
	}

	return r
}

func (k SubmissionKey) String() string {
	return string(k)
}
