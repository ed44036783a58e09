package wallet

import "github.com/sirupsen/logrus"

// redactionHook is a logrus.Hook that runs Redact over the message and
// every string field of each log entry before it's formatted, so a private
// key never reaches stdout even if a caller accidentally logs one.
type redactionHook struct{}

// RedactionHook returns a logrus.Hook suitable for Logger.AddHook, fired
// site-wide rather than requiring every call site to remember to call
// Redact itself.
func RedactionHook() logrus.Hook {
	return redactionHook{}
}

func (redactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (redactionHook) Fire(entry *logrus.Entry) error {
	entry.Message = Redact(entry.Message)
	for k, v := range entry.Data {
		if s, ok := v.(string); ok {
			entry.Data[k] = Redact(s)
		}
	}
	return nil
}
