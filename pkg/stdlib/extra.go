// Extra host builtins adapted from the teacher's primitive set: hashing,
// encoding, compression, randomness, date/time, regular expressions, file
// I/O and HTTP. Each one is a thin koji.StaticFunction wrapper around a
// small Go helper that does the actual work against plain Go types, kept
// close to the teacher's own per-concern helper functions (spec.md §6
// static_function — these are exactly the kind of host capability that
// interface exists to expose).
//
// JSON and ZIP are not carried over: the teacher's jsonParse/jsonGenerate
// round-trip through its now-gone Array value type, and zipCompress is a
// strict duplicate of gzipCompress's single-blob use case with a heavier
// container format — neither has anywhere left to attach to without
// reintroducing machinery the language itself doesn't have.
package stdlib

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/cmtristano/koji/pkg/koji"
)

// InstallExtra registers every extra builtin into ctx, beyond print/len.
func InstallExtra(ctx *koji.Context) {
	ctx.StaticFunction("sha256", 1, 1, wrap1(sha256Hash))
	ctx.StaticFunction("sha512", 1, 1, wrap1(sha512Hash))
	ctx.StaticFunction("md5", 1, 1, wrap1(md5Hash))
	ctx.StaticFunction("base64Encode", 1, 1, wrap1(base64Encode))
	ctx.StaticFunction("base64Decode", 1, 1, wrapErr1(base64Decode))
	ctx.StaticFunction("gzipCompress", 1, 1, wrapErr1(gzipCompress))
	ctx.StaticFunction("gzipDecompress", 1, 1, wrapErr1(gzipDecompress))

	ctx.StaticFunction("randomInt", 2, 2, builtinRandomInt)
	ctx.StaticFunction("randomFloat", 0, 0, builtinRandomFloat)
	ctx.StaticFunction("randomBytes", 1, 1, builtinRandomBytes)

	ctx.StaticFunction("dateNow", 0, 0, builtinDateNow)
	ctx.StaticFunction("dateFormat", 2, 2, builtinDateFormat)
	ctx.StaticFunction("dateParse", 2, 2, builtinDateParse)
	ctx.StaticFunction("timeYear", 1, 1, timeComponent(func(t time.Time) int { return t.Year() }))
	ctx.StaticFunction("timeMonth", 1, 1, timeComponent(func(t time.Time) int { return int(t.Month()) }))
	ctx.StaticFunction("timeDay", 1, 1, timeComponent(func(t time.Time) int { return t.Day() }))
	ctx.StaticFunction("timeHour", 1, 1, timeComponent(func(t time.Time) int { return t.Hour() }))
	ctx.StaticFunction("timeMinute", 1, 1, timeComponent(func(t time.Time) int { return t.Minute() }))
	ctx.StaticFunction("timeSecond", 1, 1, timeComponent(func(t time.Time) int { return t.Second() }))

	ctx.StaticFunction("regexMatch", 2, 2, builtinRegexMatch)
	ctx.StaticFunction("regexFindAll", 2, 2, builtinRegexFindAll)
	ctx.StaticFunction("regexReplace", 3, 3, builtinRegexReplace)

	ctx.StaticFunction("fileRead", 1, 1, wrapErr1(fileRead))
	ctx.StaticFunction("fileWrite", 2, 2, builtinFileWrite)
	ctx.StaticFunction("fileExists", 1, 1, builtinFileExists)
	ctx.StaticFunction("fileDelete", 1, 1, builtinFileDelete)

	ctx.StaticFunction("httpGet", 1, 1, wrapErr1(httpGet))
	ctx.StaticFunction("httpPost", 2, 2, builtinHTTPPost)
}

// wrap1 adapts a string->string helper into a StaticFunction that reads
// its single string argument off the stack and pushes the result.
func wrap1(fn func(string) string) koji.StaticFunction {
	return func(ctx *koji.Context) (int, error) {
		ctx.PushString(fn(ctx.GetString(0)))
		return 1, nil
	}
}

// wrapErr1 is wrap1 for a helper that can also fail.
func wrapErr1(fn func(string) (string, error)) koji.StaticFunction {
	return func(ctx *koji.Context) (int, error) {
		out, err := fn(ctx.GetString(0))
		if err != nil {
			return 0, err
		}
		ctx.PushString(out)
		return 1, nil
	}
}

func sha256Hash(data string) string { return fmt.Sprintf("%x", sha256.Sum256([]byte(data))) }
func sha512Hash(data string) string { return fmt.Sprintf("%x", sha512.Sum512([]byte(data))) }
func md5Hash(data string) string    { return fmt.Sprintf("%x", md5.Sum([]byte(data))) }

func base64Encode(data string) string { return base64.StdEncoding.EncodeToString([]byte(data)) }

func base64Decode(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return string(decoded), nil
}

func gzipCompress(data string) (string, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(data)); err != nil {
		return "", fmt.Errorf("failed to write to gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close gzip: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func gzipDecompress(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("failed to open gzip: %w", err)
	}
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read gzip: %w", err)
	}
	return string(content), nil
}

func builtinRandomInt(ctx *koji.Context) (int, error) {
	min, max := int64(ctx.ToNumber(1)), int64(ctx.ToNumber(0))
	if min > max {
		return 0, fmt.Errorf("randomInt: min must be <= max")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max-min+1))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %w", err)
	}
	ctx.PushNumber(float64(n.Int64() + min))
	return 1, nil
}

func builtinRandomFloat(ctx *koji.Context) (int, error) {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return 0, fmt.Errorf("failed to generate random float: %w", err)
	}
	var n uint64
	for _, b := range buf {
		n = n<<8 | uint64(b)
	}
	ctx.PushNumber(float64(n>>11) / float64(uint64(1)<<53))
	return 1, nil
}

func builtinRandomBytes(ctx *koji.Context) (int, error) {
	n := int64(ctx.ToNumber(0))
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return 0, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	ctx.PushString(base64.StdEncoding.EncodeToString(buf))
	return 1, nil
}

func builtinDateNow(ctx *koji.Context) (int, error) {
	ctx.PushNumber(float64(time.Now().Unix()))
	return 1, nil
}

func parseLayout(format string) string {
	switch format {
	case "iso8601", "ISO8601", "rfc3339", "RFC3339":
		return time.RFC3339
	case "date":
		return "2006-01-02"
	case "time":
		return "15:04:05"
	case "datetime":
		return "2006-01-02 15:04:05"
	default:
		return format
	}
}

func builtinDateFormat(ctx *koji.Context) (int, error) {
	ts := int64(ctx.ToNumber(1))
	t := time.Unix(ts, 0).UTC()
	ctx.PushString(t.Format(parseLayout(ctx.GetString(0))))
	return 1, nil
}

func builtinDateParse(ctx *koji.Context) (int, error) {
	format := ctx.GetString(1)
	dateStr := ctx.GetString(0)
	t, err := time.Parse(parseLayout(format), dateStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse date: %w", err)
	}
	ctx.PushNumber(float64(t.Unix()))
	return 1, nil
}

func timeComponent(component func(time.Time) int) koji.StaticFunction {
	return func(ctx *koji.Context) (int, error) {
		t := time.Unix(int64(ctx.ToNumber(0)), 0).UTC()
		ctx.PushNumber(float64(component(t)))
		return 1, nil
	}
}

func builtinRegexMatch(ctx *koji.Context) (int, error) {
	text, pattern := ctx.GetString(0), ctx.GetString(1)
	matched, err := regexp.MatchString(pattern, text)
	if err != nil {
		return 0, fmt.Errorf("invalid regex pattern: %w", err)
	}
	ctx.PushBool(matched)
	return 1, nil
}

// builtinRegexFindAll returns a table of every match, indexed 0, 1, 2, ...
// (spec.md §4.4's table type doubles as koji's only sequence container).
func builtinRegexFindAll(ctx *koji.Context) (int, error) {
	text, pattern := ctx.GetString(0), ctx.GetString(1)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid regex pattern: %w", err)
	}
	matches := re.FindAllString(text, -1)
	ctx.PushStringTable(matches)
	return 1, nil
}

func builtinRegexReplace(ctx *koji.Context) (int, error) {
	replacement, text, pattern := ctx.GetString(0), ctx.GetString(1), ctx.GetString(2)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid regex pattern: %w", err)
	}
	ctx.PushString(re.ReplaceAllString(text, replacement))
	return 1, nil
}

func fileRead(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(content), nil
}

func builtinFileWrite(ctx *koji.Context) (int, error) {
	content, path := ctx.GetString(0), ctx.GetString(1)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	return 0, nil
}

func builtinFileExists(ctx *koji.Context) (int, error) {
	_, err := os.Stat(ctx.GetString(0))
	ctx.PushBool(err == nil)
	return 1, nil
}

func builtinFileDelete(ctx *koji.Context) (int, error) {
	if err := os.Remove(ctx.GetString(0)); err != nil {
		return 0, fmt.Errorf("failed to delete file: %w", err)
	}
	return 0, nil
}

func httpGet(url string) (string, error) {
	resp, err := http.Get(url)
	if err != nil {
		return "", fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

func builtinHTTPPost(ctx *koji.Context) (int, error) {
	body, url := ctx.GetString(0), ctx.GetString(1)
	resp, err := http.Post(url, "text/plain", strings.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}
	ctx.PushString(string(respBody))
	return 1, nil
}
