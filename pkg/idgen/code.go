package idgen

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// codeAlphabet 去掉了容易混淆的 0/O、1/I/L，方便店员在扫码失败时手工输入
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

var ErrInvalidCodeLength = errors.New("交易码长度必须大于0")

// GenerateCode 生成密码学安全的随机交易码（二维码内容）
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidCodeLength
	}

	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
