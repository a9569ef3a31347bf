package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"

	"github.com/BXA21/NFCCARDREADER-SYSTEM/internal/codec"
)

// maxRequestBody caps the request body size for every encoding. The largest
// agent message (HeartbeatRequest) is well under 1 KiB in any of them.
const maxRequestBody = 4096

const (
	contentTypeJSON     = "application/json"
	contentTypeProtobuf = "application/x-protobuf"
)

var errUnsupportedFormat = errors.New("encoding not supported for this endpoint")

type wireFormat int

const (
	formatJSON wireFormat = iota
	formatProtobuf
	formatCBOR
)

// requestFormat picks the body encoding from Content-Type. Anything
// unrecognised is treated as JSON.
func requestFormat(r *http.Request) wireFormat {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return formatJSON
	}
	switch ct {
	case contentTypeProtobuf, "application/protobuf", "application/octet-stream":
		return formatProtobuf
	case codec.ContentType:
		return formatCBOR
	}
	return formatJSON
}

// acceptFormat picks the response encoding for GET requests, which carry no
// body to mirror.
func acceptFormat(r *http.Request) wireFormat {
	if a := r.Header.Get("Accept"); a != "" {
		if ct, _, err := mime.ParseMediaType(a); err == nil && ct == codec.ContentType {
			return formatCBOR
		}
	}
	return formatJSON
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}

// decodeBody unmarshals a JSON or CBOR body into v, rejecting unknown
// fields. Protobuf bodies go through readProto instead.
func decodeBody(r *http.Request, f wireFormat, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	switch f {
	case formatCBOR:
		return codec.Unmarshal(body, v)
	case formatJSON:
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	return errUnsupportedFormat
}

func readProto(r *http.Request, msg proto.Message) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeProtobuf)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeBody encodes v as JSON or CBOR. Protobuf responses are written with
// writeProto by handlers that have a schema message for them.
func writeBody(w http.ResponseWriter, f wireFormat, status int, v any) {
	if f == formatCBOR {
		data, err := codec.Marshal(v)
		if err != nil {
			http.Error(w, "cbor marshal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", codec.ContentType)
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, f wireFormat, status int, code, msg string) {
	if f == formatProtobuf {
		http.Error(w, fmt.Sprintf("%s: %s", code, msg), status)
		return
	}
	writeBody(w, f, status, errorBody{Error: code, Message: msg})
}
