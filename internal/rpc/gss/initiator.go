// This file provides the initiator-side (client) mirror of integrity.go and
// privacy.go: wrapping outbound call bodies and unwrapping inbound reply
// bodies. The acceptor-side functions sign/seal with the Acceptor* key
// usages and verify/open with the Initiator* ones; the client does the
// opposite by construction, per RFC 2203 Section 5.3.3.4.
package gss

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/types"
)

// WrapCallIntegrity wraps an outbound call body as rpc_gss_integ_data.
//
// Mirrors WrapIntegrity, but the MIC is computed with KeyUsageInitiatorSign
// and the token is marked as sent by the initiator (acceptor flag clear).
func WrapCallIntegrity(sessionKey types.EncryptionKey, seqNum uint32, callBody []byte) ([]byte, error) {
	databodyInteg := make([]byte, 4+len(callBody))
	binary.BigEndian.PutUint32(databodyInteg[0:4], seqNum)
	copy(databodyInteg[4:], callBody)

	micToken := gssapi.MICToken{
		Flags:     0, // sent by initiator
		SndSeqNum: uint64(seqNum),
		Payload:   databodyInteg,
	}

	if err := micToken.SetChecksum(sessionKey, KeyUsageInitiatorSign); err != nil {
		return nil, fmt.Errorf("compute call MIC: %w", err)
	}

	micBytes, err := micToken.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal call MIC: %w", err)
	}

	var buf bytes.Buffer
	if err := writeOpaque(&buf, databodyInteg); err != nil {
		return nil, fmt.Errorf("encode databody_integ: %w", err)
	}
	if err := writeOpaque(&buf, micBytes); err != nil {
		return nil, fmt.Errorf("encode checksum: %w", err)
	}

	return buf.Bytes(), nil
}

// UnwrapReplyIntegrity decodes and verifies an rpc_gss_integ_data reply body.
//
// Mirrors UnwrapIntegrity, but verifies with KeyUsageAcceptorSign and the
// expected seq_num is the one this call was sent with (the server echoes
// it back in the reply body, not a credential field).
func UnwrapReplyIntegrity(sessionKey types.EncryptionKey, wantSeqNum uint32, replyBody []byte) ([]byte, error) {
	reader := bytes.NewReader(replyBody)

	databodyInteg, err := readXDROpaque(reader)
	if err != nil {
		return nil, fmt.Errorf("decode databody_integ: %w", err)
	}

	checksumBytes, err := readXDROpaque(reader)
	if err != nil {
		return nil, fmt.Errorf("decode checksum: %w", err)
	}

	var micToken gssapi.MICToken
	if err := micToken.Unmarshal(checksumBytes, true /* from acceptor */); err != nil {
		return nil, fmt.Errorf("unmarshal MIC token: %w", err)
	}
	micToken.Payload = databodyInteg

	ok, err := micToken.Verify(sessionKey, KeyUsageAcceptorSign)
	if err != nil {
		return nil, fmt.Errorf("verify MIC: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("reply MIC verification failed")
	}

	if len(databodyInteg) < 4 {
		return nil, fmt.Errorf("databody_integ too short for seq_num: %d bytes", len(databodyInteg))
	}
	bodySeqNum := binary.BigEndian.Uint32(databodyInteg[0:4])
	if bodySeqNum != wantSeqNum {
		return nil, fmt.Errorf("reply seq_num mismatch: sent=%d, got=%d", wantSeqNum, bodySeqNum)
	}

	return databodyInteg[4:], nil
}

// WrapCallPrivacy wraps an outbound call body as rpc_gss_priv_data.
//
// Mirrors WrapPrivacy, encrypting with KeyUsageInitiatorSeal and marking the
// token as sent by the initiator.
func WrapCallPrivacy(sessionKey types.EncryptionKey, seqNum uint32, callBody []byte) ([]byte, error) {
	plaintext := make([]byte, 4+len(callBody))
	binary.BigEndian.PutUint32(plaintext[0:4], seqNum)
	copy(plaintext[4:], callBody)

	encType, err := crypto.GetEtype(sessionKey.KeyType)
	if err != nil {
		return nil, fmt.Errorf("get encryption type: %w", err)
	}

	flags := byte(wrapFlagSealed) // sent by initiator: acceptor flag clear

	header := make([]byte, wrapTokenHdrLen)
	header[0] = 0x05
	header[1] = 0x04
	header[2] = flags
	header[3] = 0xFF
	binary.BigEndian.PutUint16(header[4:6], 0) // ec
	binary.BigEndian.PutUint16(header[6:8], 0) // rrc
	binary.BigEndian.PutUint64(header[8:16], uint64(seqNum))

	headerCopy := make([]byte, wrapTokenHdrLen)
	copy(headerCopy, header)

	toEncrypt := make([]byte, len(plaintext)+wrapTokenHdrLen)
	copy(toEncrypt, plaintext)
	copy(toEncrypt[len(plaintext):], headerCopy)

	_, ciphertext, err := encType.EncryptMessage(sessionKey.KeyValue, toEncrypt, KeyUsageInitiatorSeal)
	if err != nil {
		return nil, fmt.Errorf("encrypt call Wrap token: %w", err)
	}

	wrapTokenBytes := make([]byte, wrapTokenHdrLen+len(ciphertext))
	copy(wrapTokenBytes, header)
	copy(wrapTokenBytes[wrapTokenHdrLen:], ciphertext)

	var buf bytes.Buffer
	if err := writeOpaque(&buf, wrapTokenBytes); err != nil {
		return nil, fmt.Errorf("encode databody_priv: %w", err)
	}

	return buf.Bytes(), nil
}

// UnwrapReplyPrivacy decodes and decrypts an rpc_gss_priv_data reply body.
//
// Mirrors UnwrapPrivacy, decrypting with KeyUsageAcceptorSeal and expecting
// the acceptor flag set (the token was sent by the server).
func UnwrapReplyPrivacy(sessionKey types.EncryptionKey, wantSeqNum uint32, replyBody []byte) ([]byte, error) {
	reader := bytes.NewReader(replyBody)

	wrapTokenBytes, err := readXDROpaque(reader)
	if err != nil {
		return nil, fmt.Errorf("decode databody_priv: %w", err)
	}
	if len(wrapTokenBytes) < wrapTokenHdrLen {
		return nil, fmt.Errorf("wrap token too short: %d bytes, need at least %d", len(wrapTokenBytes), wrapTokenHdrLen)
	}
	if wrapTokenBytes[0] != 0x05 || wrapTokenBytes[1] != 0x04 {
		return nil, fmt.Errorf("invalid Wrap token ID: 0x%02x%02x, expected 0x0504", wrapTokenBytes[0], wrapTokenBytes[1])
	}

	flags := wrapTokenBytes[2]
	ec := binary.BigEndian.Uint16(wrapTokenBytes[4:6])
	rrc := binary.BigEndian.Uint16(wrapTokenBytes[6:8])
	sndSeqNum := binary.BigEndian.Uint64(wrapTokenBytes[8:16])

	if flags&wrapFlagSentByAcceptor == 0 {
		return nil, fmt.Errorf("expected acceptor flag set in reply Wrap token")
	}

	var plaintext []byte

	if flags&wrapFlagSealed != 0 {
		ciphertext := wrapTokenBytes[wrapTokenHdrLen:]
		if rrc > 0 && len(ciphertext) > 0 {
			ciphertext = rotateLeft(ciphertext, int(rrc))
		}

		decrypted, err := crypto.DecryptMessage(ciphertext, sessionKey, KeyUsageAcceptorSeal)
		if err != nil {
			return nil, fmt.Errorf("decrypt reply Wrap token: %w", err)
		}
		if len(decrypted) < wrapTokenHdrLen {
			return nil, fmt.Errorf("decrypted reply too short for header: %d bytes", len(decrypted))
		}

		headerCopy := decrypted[len(decrypted)-wrapTokenHdrLen:]
		if headerCopy[2] != flags {
			return nil, fmt.Errorf("header_copy flags mismatch: got 0x%02x, expected 0x%02x", headerCopy[2], flags)
		}
		copySeqNum := binary.BigEndian.Uint64(headerCopy[8:16])
		if copySeqNum != sndSeqNum {
			return nil, fmt.Errorf("header_copy seq_num mismatch: got %d, expected %d", copySeqNum, sndSeqNum)
		}

		fillerSize := int(ec)
		plaintextEnd := len(decrypted) - wrapTokenHdrLen - fillerSize
		if plaintextEnd < 0 {
			return nil, fmt.Errorf("invalid EC value %d: would make plaintext negative", ec)
		}
		plaintext = decrypted[:plaintextEnd]
	} else {
		var wrapToken gssapi.WrapToken
		if err := wrapToken.Unmarshal(wrapTokenBytes, true /* from acceptor */); err != nil {
			return nil, fmt.Errorf("unmarshal non-sealed reply Wrap token: %w", err)
		}
		ok, err := wrapToken.Verify(sessionKey, KeyUsageAcceptorSeal)
		if err != nil {
			return nil, fmt.Errorf("verify non-sealed reply Wrap token: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("non-sealed reply Wrap token verification failed")
		}
		plaintext = wrapToken.Payload
	}

	if len(plaintext) < 4 {
		return nil, fmt.Errorf("reply plaintext too short for seq_num: %d bytes", len(plaintext))
	}
	bodySeqNum := binary.BigEndian.Uint32(plaintext[0:4])
	if bodySeqNum != wantSeqNum {
		return nil, fmt.Errorf("reply seq_num mismatch: sent=%d, got=%d", wantSeqNum, bodySeqNum)
	}

	return plaintext[4:], nil
}
