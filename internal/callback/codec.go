// Package callback implements the signed token protocol that round-trips
// typed actions through the messaging platform's button payloads. Tokens are
// colon-separated ASCII (`cf:1:<type>:...[:sig]`) and stay within the
// platform's 64-byte payload ceiling. When a secret is configured every
// non-noop token carries a truncated HMAC suffix; with an empty secret the
// codec runs in open mode and accepts unsigned tokens, which permits spoofed
// votes and saves.
package callback

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	tokenPrefix  = "cf"
	tokenVersion = "1"
	noopToken    = "cf:noop"

	tagVote         = "v"
	tagSave         = "s"
	tagSaveDecision = "sn"
	tagNew          = "n"
	tagPage         = "p"
	tagNote         = "nt"
	tagNoteList     = "nl"

	// maxChallengeID bounds challenge identifiers to 32-bit range so a token
	// never outgrows the platform payload ceiling.
	maxChallengeID = int64(2147483647)
	// maxPage is the decode-time ceiling for page numbers.
	maxPage = 10000

	signatureHexLength = 6
)

// ErrInvalidToken indicates a token that failed grammar, signature, or field
// validation. Decoding never distinguishes the causes to the caller beyond
// this sentinel; a tampered token and a garbled one are the same failure.
var ErrInvalidToken = errors.New("callback: invalid token")

// Codec encodes actions into signed tokens and decodes/verifies them back.
// A nil or empty secret selects open mode: no signature is appended and none
// is demanded.
type Codec struct {
	secret []byte
}

// NewCodec constructs a Codec. secret may be empty (open mode).
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret}
}

// Signed reports whether the codec appends and verifies signatures.
func (c *Codec) Signed() bool {
	return len(c.secret) > 0
}

// EncodeVote builds a vote token. value must be +1 or -1.
func (c *Codec) EncodeVote(challengeID int64, value int) string {
	return c.pack(tagVote, strconv.FormatInt(challengeID, 10), strconv.Itoa(value))
}

// EncodeSave builds a save-request token.
func (c *Codec) EncodeSave(challengeID int64) string {
	return c.pack(tagSave, strconv.FormatInt(challengeID, 10))
}

// EncodeSaveDecision builds a note-prompt resolution token.
func (c *Codec) EncodeSaveDecision(challengeID int64, decision Decision) string {
	return c.pack(tagSaveDecision, strconv.FormatInt(challengeID, 10), string(decision))
}

// EncodeNew builds a fresh-challenge request token.
func (c *Codec) EncodeNew() string {
	return c.pack(tagNew)
}

// EncodePage builds a pagination token.
func (c *Codec) EncodePage(list ListID, page int) string {
	return c.pack(tagPage, string(list), strconv.Itoa(page))
}

// EncodeNote builds a token fetching the stored note for one challenge.
func (c *Codec) EncodeNote(challengeID int64) string {
	return c.pack(tagNote, strconv.FormatInt(challengeID, 10))
}

// EncodeNoteList builds a token fetching all stored notes.
func (c *Codec) EncodeNoteList() string {
	return c.pack(tagNoteList)
}

// EncodeNoop returns the fixed inert token. It is never signed so the most
// frequently rendered button stays as small as possible.
func (c *Codec) EncodeNoop() string {
	return noopToken
}

// Decode verifies and parses a token back into an Action. Any grammar,
// signature, version, or field-range failure yields ErrInvalidToken.
func (c *Codec) Decode(token string) (Action, error) {
	if token == noopToken {
		return Action{Kind: KindNoop}, nil
	}

	head := token
	if c.Signed() {
		separator := strings.LastIndex(token, ":")
		if separator < 0 {
			return Action{}, ErrInvalidToken
		}
		head = token[:separator]
		signature := token[separator+1:]
		if !hmac.Equal([]byte(c.sign(head)), []byte(signature)) {
			return Action{}, ErrInvalidToken
		}
	}

	fields := strings.Split(head, ":")
	if len(fields) < 3 || fields[0] != tokenPrefix {
		return Action{}, ErrInvalidToken
	}
	if fields[1] != tokenVersion {
		return Action{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidToken, fields[1])
	}

	switch fields[2] {
	case tagVote:
		if len(fields) != 5 {
			return Action{}, ErrInvalidToken
		}
		challengeID, err := parseChallengeID(fields[3])
		if err != nil {
			return Action{}, err
		}
		value, err := parseVoteValue(fields[4])
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: KindVote, ChallengeID: challengeID, Value: value}, nil
	case tagSave:
		if len(fields) != 4 {
			return Action{}, ErrInvalidToken
		}
		challengeID, err := parseChallengeID(fields[3])
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: KindSave, ChallengeID: challengeID}, nil
	case tagSaveDecision:
		if len(fields) != 5 {
			return Action{}, ErrInvalidToken
		}
		challengeID, err := parseChallengeID(fields[3])
		if err != nil {
			return Action{}, err
		}
		decision := Decision(fields[4])
		if decision != DecisionYes && decision != DecisionNo {
			return Action{}, ErrInvalidToken
		}
		return Action{Kind: KindSaveDecision, ChallengeID: challengeID, Decision: decision}, nil
	case tagNew:
		if len(fields) != 3 {
			return Action{}, ErrInvalidToken
		}
		return Action{Kind: KindNew}, nil
	case tagPage:
		if len(fields) != 5 {
			return Action{}, ErrInvalidToken
		}
		list := ListID(fields[3])
		if list != ListSaved && list != ListTop {
			return Action{}, ErrInvalidToken
		}
		page, err := strconv.Atoi(fields[4])
		if err != nil || page < 1 || page > maxPage {
			return Action{}, ErrInvalidToken
		}
		return Action{Kind: KindPage, List: list, Page: page}, nil
	case tagNote:
		if len(fields) != 4 {
			return Action{}, ErrInvalidToken
		}
		challengeID, err := parseChallengeID(fields[3])
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: KindNote, ChallengeID: challengeID}, nil
	case tagNoteList:
		if len(fields) != 3 {
			return Action{}, ErrInvalidToken
		}
		return Action{Kind: KindNoteList}, nil
	}

	return Action{}, fmt.Errorf("%w: unknown type %q", ErrInvalidToken, fields[2])
}

func (c *Codec) pack(parts ...string) string {
	raw := tokenPrefix + ":" + tokenVersion + ":" + strings.Join(parts, ":")
	if !c.Signed() {
		return raw
	}
	return raw + ":" + c.sign(raw)
}

func (c *Codec) sign(raw string) string {
	mac := hmac.New(sha1.New, c.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))[:signatureHexLength]
}

func parseChallengeID(field string) (int64, error) {
	challengeID, err := strconv.ParseInt(field, 10, 64)
	if err != nil || challengeID < -maxChallengeID || challengeID > maxChallengeID {
		return 0, ErrInvalidToken
	}
	return challengeID, nil
}

func parseVoteValue(field string) (int, error) {
	switch field {
	case "1":
		return 1, nil
	case "-1":
		return -1, nil
	}
	return 0, ErrInvalidToken
}
