package signature

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	// Namespace is the SSH signature namespace of update payloads.
	Namespace = "appshell-update"

	magic          = "SSHSIG"
	blobVersion    = 1
	hashAlgorithm  = "sha512"
	armorBegin     = "-----BEGIN SSH SIGNATURE-----"
	armorEnd       = "-----END SSH SIGNATURE-----"
	armorLineWidth = 70
)

var (
	errNoTrustedKeys      = errors.New("no trusted public keys configured")
	errMissingMarkers     = errors.New("invalid SSH signature format: missing markers")
	errBadMagic           = errors.New("invalid SSH signature magic")
	errUnsupportedVersion = errors.New("unsupported SSH signature version")
	errUnsupportedHash    = errors.New("unsupported hash algorithm")
	errNamespaceMismatch  = errors.New("signature namespace mismatch")
	errNoMatchingKey      = errors.New("signature does not match any trusted key")
)

// Verifier checks armored SSH signatures against a set of trusted public keys.
type Verifier struct {
	// keys are the trusted public keys.
	keys []ssh.PublicKey
}

// NewVerifier parses authorized_keys formatted lines. An empty list yields a
// verifier that is not Enabled.
func NewVerifier(authorizedKeys []string) (*Verifier, error) {
	v := &Verifier{
		keys: make([]ssh.PublicKey, 0, len(authorizedKeys)),
	}

	for i, line := range authorizedKeys {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("parse public key %d: %w", i, err)
		}

		v.keys = append(v.keys, key)
	}

	return v, nil
}

// Enabled reports whether any trusted key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && len(v.keys) > 0
}

// Verify hashes message and checks the armored signature against the trusted keys.
func (v *Verifier) Verify(message io.Reader, armored []byte) error {
	if !v.Enabled() {
		return errNoTrustedKeys
	}

	sig, err := parseArmored(armored)
	if err != nil {
		return err
	}

	if sig.namespace != Namespace {
		return fmt.Errorf("%w: %q", errNamespaceMismatch, sig.namespace)
	}

	if sig.hashAlgorithm != hashAlgorithm {
		return fmt.Errorf("%w: %s", errUnsupportedHash, sig.hashAlgorithm)
	}

	digest, err := digestOf(message)
	if err != nil {
		return err
	}

	signed := signedData(sig.namespace, sig.hashAlgorithm, digest)

	for _, key := range v.keys {
		if err = key.Verify(signed, sig.signature); err == nil {
			return nil
		}
	}

	return errNoMatchingKey
}

// Sign produces an armored SSH signature of message in the update namespace.
func Sign(signer ssh.Signer, message io.Reader) ([]byte, error) {
	digest, err := digestOf(message)
	if err != nil {
		return nil, err
	}

	signed := signedData(Namespace, hashAlgorithm, digest)

	var sig *ssh.Signature

	// RSA keys must not fall back to SHA-1 signatures.
	algorithmSigner, ok := signer.(ssh.AlgorithmSigner)
	if ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
		sig, err = algorithmSigner.SignWithAlgorithm(rand.Reader, signed, ssh.KeyAlgoRSASHA512)
	} else {
		sig, err = signer.Sign(rand.Reader, signed)
	}

	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}

	var blob bytes.Buffer

	blob.WriteString(magic)
	_ = binary.Write(&blob, binary.BigEndian, uint32(blobVersion))
	writeString(&blob, signer.PublicKey().Marshal())
	writeString(&blob, []byte(Namespace))
	writeString(&blob, nil)
	writeString(&blob, []byte(hashAlgorithm))
	writeString(&blob, ssh.Marshal(sig))

	return armor(blob.Bytes()), nil
}

// parsedSignature is the decoded content of an SSH signature blob.
type parsedSignature struct {
	// namespace is the signing domain.
	namespace string
	// hashAlgorithm is the digest applied to the message.
	hashAlgorithm string
	// signature is the raw key signature.
	signature *ssh.Signature
}

func parseArmored(armored []byte) (*parsedSignature, error) {
	begin := bytes.Index(armored, []byte(armorBegin))
	end := bytes.Index(armored, []byte(armorEnd))

	if begin == -1 || end == -1 || end < begin {
		return nil, errMissingMarkers
	}

	body := strings.Join(strings.Fields(string(armored[begin+len(armorBegin):end])), "")

	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	return parseBlob(decoded)
}

func parseBlob(blob []byte) (*parsedSignature, error) {
	r := bytes.NewReader(blob)

	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	if string(header) != magic {
		return nil, errBadMagic
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	if version != blobVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, version)
	}

	fields := make([][]byte, 0, 5)

	// Public key, namespace, reserved, hash algorithm, signature.
	for range 5 {
		field, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read signature field: %w", err)
		}

		fields = append(fields, field)
	}

	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(fields[4], sig); err != nil {
		return nil, fmt.Errorf("decode key signature: %w", err)
	}

	return &parsedSignature{
		namespace:     string(fields[1]),
		hashAlgorithm: string(fields[3]),
		signature:     sig,
	}, nil
}

// signedData builds the byte string a key actually signs.
func signedData(namespace, algorithm string, digest []byte) []byte {
	var buf bytes.Buffer

	buf.WriteString(magic)
	writeString(&buf, []byte(namespace))
	writeString(&buf, nil)
	writeString(&buf, []byte(algorithm))
	writeString(&buf, digest)

	return buf.Bytes()
}

func digestOf(message io.Reader) ([]byte, error) {
	hasher := sha512.New()
	if _, err := io.Copy(hasher, message); err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}

	return hasher.Sum(nil), nil
}

func armor(blob []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(blob)

	var out strings.Builder

	out.WriteString(armorBegin)
	out.WriteByte('\n')

	for len(encoded) > armorLineWidth {
		out.WriteString(encoded[:armorLineWidth])
		out.WriteByte('\n')

		encoded = encoded[armorLineWidth:]
	}

	out.WriteString(encoded)
	out.WriteByte('\n')
	out.WriteString(armorEnd)
	out.WriteByte('\n')

	return []byte(out.String())
}

func writeString(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data))) //nolint:gosec // Lengths are far below 4 GiB.
	buf.Write(data)
}

func readString(r *bytes.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if int64(length) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	return data, nil
}
