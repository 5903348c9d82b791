package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxRecoveryScan 限制括號比對掃描的長度
const maxRecoveryScan = 1 << 20

// ParseJSON 解析 JSON 字符串到結構體
func ParseJSON(data string, v interface{}) error {
	return decodeJSON(strings.NewReader(data), v)
}

// ParseJSONBytes 解析 JSON 位元組切片到結構體
func ParseJSONBytes(data []byte, v interface{}) error {
	return decodeJSON(bytes.NewReader(data), v)
}

func decodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		return err
	}

	// 確保沒有多餘資料
	for {
		t, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if t != nil {
			return fmt.Errorf("unexpected extra JSON data")
		}
	}
}

// ExtractJSONObject 找出文字中第一個括號平衡的 {...} 區段。
// 字串內的括號與跳脫字元不計入；找不到時 ok 為 false。
func ExtractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	end := len(text)
	if end-start > maxRecoveryScan {
		end = start + maxRecoveryScan
	}

	for i := start; i < end; i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONLenient 先嚴格解析整段文字，失敗時再嘗試第一個平衡的 {...} 區段
func ParseJSONLenient(text string, v interface{}) error {
	err := ParseJSON(strings.TrimSpace(text), v)
	if err == nil {
		return nil
	}
	fragment, ok := ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("no JSON object found: %w", err)
	}
	if ferr := ParseJSON(fragment, v); ferr != nil {
		return fmt.Errorf("recovered JSON object is invalid: %w", ferr)
	}
	return nil
}

// ToJSON 將結構體轉換為 JSON 字符串
func ToJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
