package directory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/tossapp/authkit"
)

const (
	recordVersionV1 = 1

	flagEmailConfirmed   = 0x01
	flagTwoFactorEnabled = 0x02
)

func encodeAccount(a *authkit.Account) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)

	var flags byte
	if a.EmailConfirmed {
		flags |= flagEmailConfirmed
	}
	if a.TwoFactorEnabled {
		flags |= flagTwoFactorEnabled
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, a.Version); err != nil {
		return nil, err
	}

	for _, s := range []string{a.ID, a.Username, a.Email, a.PasswordHash} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}

	if len(a.Hashtags) > 65535 {
		return nil, errors.New("too many hashtags")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(a.Hashtags))); err != nil {
		return nil, err
	}
	for _, tag := range a.Hashtags {
		if err := writeString(&buf, tag); err != nil {
			return nil, err
		}
	}

	if len(a.Logins) > 65535 {
		return nil, errors.New("too many logins")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(a.Logins))); err != nil {
		return nil, err
	}
	for _, l := range a.Logins {
		if err := writeString(&buf, l.Provider); err != nil {
			return nil, err
		}
		if err := writeString(&buf, l.Key); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeAccount(data []byte) (*authkit.Account, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid account record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	a := &authkit.Account{
		EmailConfirmed:   flags&flagEmailConfirmed != 0,
		TwoFactorEnabled: flags&flagTwoFactorEnabled != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &a.Version); err != nil {
		return nil, err
	}

	for _, dst := range []*string{&a.ID, &a.Username, &a.Email, &a.PasswordHash} {
		s, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*dst = s
	}

	var tagCount uint16
	if err := binary.Read(reader, binary.BigEndian, &tagCount); err != nil {
		return nil, err
	}
	if tagCount > 0 {
		a.Hashtags = make([]string, 0, tagCount)
		for i := uint16(0); i < tagCount; i++ {
			tag, err := readString(reader)
			if err != nil {
				return nil, err
			}
			a.Hashtags = append(a.Hashtags, tag)
		}
	}

	var loginCount uint16
	if err := binary.Read(reader, binary.BigEndian, &loginCount); err != nil {
		return nil, err
	}
	if loginCount > 0 {
		a.Logins = make([]authkit.ProviderLink, 0, loginCount)
		for i := uint16(0); i < loginCount; i++ {
			provider, err := readString(reader)
			if err != nil {
				return nil, err
			}
			key, err := readString(reader)
			if err != nil {
				return nil, err
			}
			a.Logins = append(a.Logins, authkit.ProviderLink{Provider: provider, Key: key})
		}
	}

	return a, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("string field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}

	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
