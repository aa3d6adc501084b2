package random

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

// GetRandomInt 生成指定位数的安全随机数字
// 例如 length=8 时，范围是 10000000-99999999
func GetRandomInt(length int) int {
	min := int64(1)
	for i := 1; i < length; i++ {
		min *= 10
	}
	max := min * 10

	rangeSize := big.NewInt(max - min)
	n, err := rand.Int(rand.Reader, rangeSize)
	if err != nil {
		return int(min) // fallback
	}
	return int(n.Int64() + min)
}

// GetRandomDigits 生成指定位数的数字字符串（首位非 0）
// 用于匿名用户 ID
func GetRandomDigits(length int) string {
	return strconv.Itoa(GetRandomInt(length))
}

// GetDisplayName 生成形如 User1234 的随机昵称
func GetDisplayName() string {
	return "User" + strconv.Itoa(GetRandomInt(4))
}
