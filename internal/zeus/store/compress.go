package store

import (
	"encoding/base64"

	"github.com/klauspost/compress/zstd"

	"github.com/zeusmux/zeus/internal/zeus/model"
)

// CompressThreshold is the message size above which the payload is
// zstd-compressed at rest. Most prompts are a few hundred bytes; a
// "queue" deliver-as hint carrying a full diff or log excerpt can run
// well past this.
const CompressThreshold = 8 * 1024

const encodingZstd = "zstd"

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

func compressMessage(message string) (stored string, encoding string) {
	if len(message) <= CompressThreshold {
		return message, ""
	}
	compressed := zstdEncoder.EncodeAll([]byte(message), nil)
	return base64.StdEncoding.EncodeToString(compressed), encodingZstd
}

func decompressMessage(stored, encoding string) (string, error) {
	if encoding != encodingZstd {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	decoded, err := zstdDecoder.DecodeAll(raw, nil)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// WriteEnvelope writes env to path, transparently compressing the
// message field when it exceeds CompressThreshold. The in-memory env
// value passed in is not mutated.
func WriteEnvelope(path string, env model.Envelope) error {
	stored, encoding := compressMessage(env.Message)
	env.Message = stored
	env.MessageEncoding = encoding
	return WriteJSONAtomic(path, env)
}

// ReadEnvelope reads path and transparently decompresses the message
// field.
func ReadEnvelope(path string) (model.Envelope, error) {
	var env model.Envelope
	if err := ReadJSON(path, &env); err != nil {
		return model.Envelope{}, err
	}
	msg, err := decompressMessage(env.Message, env.MessageEncoding)
	if err != nil {
		return model.Envelope{}, ErrCorrupt
	}
	env.Message = msg
	env.MessageEncoding = ""
	return env, nil
}

// WriteInboxItem writes item to path, transparently compressing the
// message field when it exceeds CompressThreshold.
func WriteInboxItem(path string, item model.InboxItem) error {
	stored, encoding := compressMessage(item.Message)
	item.Message = stored
	item.MessageEncoding = encoding
	return WriteJSONAtomic(path, item)
}

// ReadInboxItem reads path and transparently decompresses the message
// field.
func ReadInboxItem(path string) (model.InboxItem, error) {
	var item model.InboxItem
	if err := ReadJSON(path, &item); err != nil {
		return model.InboxItem{}, err
	}
	msg, err := decompressMessage(item.Message, item.MessageEncoding)
	if err != nil {
		return model.InboxItem{}, ErrCorrupt
	}
	item.Message = msg
	item.MessageEncoding = ""
	return item, nil
}
