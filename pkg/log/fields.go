package log

// Field is a single structured key/value pair passed to a Logger method.
type Field struct {
	Key   string
	Value interface{}
}

// F builds a Field of any value type.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str builds a string-valued Field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int builds an int-valued Field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Err builds a Field carrying an error under the conventional "error" key.
func Err(err error) Field { return Field{Key: "error", Value: err} }

// Component builds a Field tagging the log line's originating component,
// under the same key ContextExtractor looks for on a context.Context.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }
