package crashkit

import (
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const sampleTrace = `  at App.Views.MainPage.OnClick (System.Object sender, System.EventArgs e) [0x00012] in /src/App/MainPage.cs:42
  at App.Services.Sync.Run (System.Int32 attempts) <0x00053 + 0x0002b> in /src/App/Sync.cs:0
  at Java.Interop.JniEnvironment.InstanceMethods.CallVoidMethod (Java.Interop.JniObjectReference instance) [0x0006e]`

func TestTranslate_ExampleFrame(t *testing.T) {
	ex := &Exception{
		Type:       "System.InvalidOperationException",
		Message:    "boom",
		StackTrace: "  at Foo.Bar (System.String) in Foo.cs:42",
	}

	th := NewTranslator().Translate(ex)
	require.NotNil(t, th)
	require.Len(t, th.Frames, 1)

	assert.Equal(t, StackFrame{
		ClassName:       "Foo",
		MethodSignature: "Bar (System.String)",
		FileLabel:       "Foo.Bar..cs",
		LineNumber:      42,
	}, th.Frames[0])
	assert.Equal(t, "System.InvalidOperationException: boom", th.Message)
	assert.Nil(t, th.Cause)
}

func TestTranslate_OneFramePerLineInOrder(t *testing.T) {
	ex := &Exception{Type: "System.Exception", Message: "m", StackTrace: sampleTrace}

	th := NewTranslator().Translate(ex)
	require.Len(t, th.Frames, 3)

	assert.Equal(t, "App.Views.MainPage", th.Frames[0].ClassName)
	assert.Equal(t, "App.Services.Sync", th.Frames[1].ClassName)
	assert.Equal(t, "Java.Interop.JniEnvironment.InstanceMethods", th.Frames[2].ClassName)

	assert.Equal(t, "App.Views.MainPage.OnClick.[0x00012].cs", th.Frames[0].FileLabel)
	assert.Equal(t, "App.Services.Sync.Run.0x0002b.cs", th.Frames[1].FileLabel)
	assert.Equal(t, "OnClick (System.Object sender, System.EventArgs e)", th.Frames[0].MethodSignature)
}

func TestTranslate_SentinelLineNumbers(t *testing.T) {
	ex := &Exception{Type: "System.Exception", Message: "m", StackTrace: sampleTrace + "\n  at A.B () in a.cs:xyz"}

	th := NewTranslator().Translate(ex)
	require.Len(t, th.Frames, 4)

	assert.Equal(t, 42, th.Frames[0].LineNumber)
	assert.Equal(t, NativeLineNumber, th.Frames[1].LineNumber, "line 0 maps to the sentinel")
	assert.Equal(t, NativeLineNumber, th.Frames[2].LineNumber, "missing location maps to the sentinel")
	assert.Equal(t, NativeLineNumber, th.Frames[3].LineNumber, "unparseable line maps to the sentinel")
}

func TestTranslate_FileLabelNeverSourceFile(t *testing.T) {
	ex := &Exception{Type: "System.Exception", Message: "m", StackTrace: sampleTrace}
	pattern := regexp.MustCompile(`^[^ ]+\.[^ .]+\.[^ ]*\.cs$`)

	th := NewTranslator().Translate(ex)
	for _, f := range th.Frames {
		assert.Regexp(t, pattern, f.FileLabel)
		assert.NotContains(t, f.FileLabel, "/src/App")
	}
}

func TestTranslate_SourceExtension(t *testing.T) {
	ex := &Exception{Type: "T", Message: "m", StackTrace: "at Foo.Bar () in Foo.fs:1"}

	th := NewTranslator(WithSourceExtension("fs")).Translate(ex)
	require.Len(t, th.Frames, 1)
	assert.Equal(t, "Foo.Bar..fs", th.Frames[0].FileLabel)
}

func TestTranslate_SkipsUnparseableLines(t *testing.T) {
	ex := &Exception{
		Type:    "System.Exception",
		Message: "m",
		StackTrace: `  at A.B () in a.cs:1
--- End of inner exception stack trace ---
garbage
  at C.D () in c.cs:2`,
	}

	th := NewTranslator().Translate(ex)
	require.Len(t, th.Frames, 2)
	assert.Equal(t, "A", th.Frames[0].ClassName)
	assert.Equal(t, "C", th.Frames[1].ClassName)
}

func TestTranslate_NoFramesIsValid(t *testing.T) {
	th := NewTranslator().Translate(&Exception{Type: "T", Message: "no trace"})
	require.NotNil(t, th)
	assert.Empty(t, th.Frames)
	assert.Equal(t, "T: no trace", th.Message)
}

func TestTranslate_AggregateUnwrapped(t *testing.T) {
	inner := &Exception{Type: "System.IO.IOException", Message: "disk", StackTrace: sampleTrace}
	translator := NewTranslator()

	direct := translator.Translate(inner)
	wrapped := translator.Translate(NewAggregate("one or more errors", NewAggregate("nested", inner)))

	assert.Equal(t, direct, wrapped)
}

func TestTranslate_JoinedErrorsAreAggregates(t *testing.T) {
	inner := &Exception{Type: "System.IO.IOException", Message: "disk", StackTrace: sampleTrace}
	translator := NewTranslator()

	joined := errors.Join(nil, inner, errors.New("second"))
	assert.Equal(t, translator.Translate(inner), translator.Translate(joined))
}

func TestTranslate_EmptyAggregate(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	translator := NewTranslator(WithTranslatorLogger(zap.New(core)))

	th := translator.Translate(NewAggregate("nothing inside", nil))
	require.NotNil(t, th)
	assert.Equal(t, "System.AggregateException: nothing inside", th.Message)
	assert.Empty(t, th.Frames)
	assert.Nil(t, th.Cause)
	assert.Equal(t, 1, logs.FilterMessage("translating degenerate aggregate").Len())
}

func TestTranslate_ThreeLevelChain(t *testing.T) {
	root := &Exception{Type: "System.ArgumentException", Message: "bad arg", StackTrace: "at C.Three () in c.cs:3"}
	mid := &Exception{Type: "System.IO.IOException", Message: "io", StackTrace: "at B.Two () in b.cs:2", Inner: root}
	top := &Exception{Type: "System.InvalidOperationException", Message: "top", StackTrace: "at A.One () in a.cs:1", Inner: mid}

	th := NewTranslator().Translate(top)
	chain := th.Chain()
	require.Len(t, chain, 3)

	assert.Equal(t, "System.InvalidOperationException: top", chain[0].Message)
	assert.Equal(t, "System.IO.IOException: io", chain[1].Message)
	assert.Equal(t, "System.ArgumentException: bad arg", chain[2].Message)
	assert.Equal(t, "B", chain[1].Frames[0].ClassName)
	assert.Equal(t, 3, chain[2].Frames[0].LineNumber)
}

func TestTranslate_AggregateInsideCauseChain(t *testing.T) {
	leaf := &Exception{Type: "Leaf", Message: "leaf"}
	top := &Exception{Type: "Top", Message: "top", Inner: NewAggregate("agg", leaf)}

	chain := NewTranslator().Translate(top).Chain()
	require.Len(t, chain, 2)
	assert.Equal(t, "Leaf: leaf", chain[1].Message)
}

func TestTranslate_CycleTerminates(t *testing.T) {
	a := &Exception{Type: "A", Message: "a"}
	b := &Exception{Type: "B", Message: "b", Inner: a}
	a.Inner = b

	core, logs := observer.New(zap.WarnLevel)
	th := NewTranslator(WithTranslatorLogger(zap.New(core))).Translate(a)

	assert.Len(t, th.Chain(), 2)
	assert.Equal(t, 1, logs.FilterMessage("cause chain cycle detected").Len())
}

func TestTranslate_MaxCauseDepth(t *testing.T) {
	var err error = &Exception{Type: "Leaf", Message: "0"}
	for i := 1; i < 10; i++ {
		err = &Exception{Type: "Level", Message: fmt.Sprint(i), Inner: err}
	}

	th := NewTranslator(WithMaxCauseDepth(4)).Translate(err)
	assert.Len(t, th.Chain(), 4)
}

func TestTranslate_NativeErrorUnchanged(t *testing.T) {
	native := &Throwable{Message: "already native", Frames: []StackFrame{{ClassName: "X", LineNumber: 1}}}
	translator := NewTranslator()

	assert.Same(t, native, translator.Translate(native))
	assert.Same(t, native, translator.Translate(NewAggregate("agg", native)))
}

func TestTranslate_NativeErrorAsCause(t *testing.T) {
	native := &Throwable{Message: "native cause"}
	top := &Exception{Type: "Top", Message: "top", Inner: native}

	th := NewTranslator().Translate(top)
	require.NotNil(t, th.Cause)
	assert.Same(t, native, th.Cause)
}

func TestTranslate_PlainGoErrors(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := fmt.Errorf("dial backend: %w", base)

	chain := NewTranslator().Translate(wrapped).Chain()
	require.Len(t, chain, 2)
	assert.Equal(t, "fmt.wrapError: dial backend: connection refused", chain[0].Message)
	assert.Equal(t, "errors.errorString: connection refused", chain[1].Message)
}

func TestTranslate_Nil(t *testing.T) {
	assert.Nil(t, NewTranslator().Translate(nil))
	assert.Nil(t, NewTranslator().Translate((*Exception)(nil)))
}

func TestTranslate_TypedNilCauseEndsChain(t *testing.T) {
	top := &Exception{Type: "Top", Message: "top", Inner: (*Exception)(nil)}

	th := NewTranslator().Translate(top)
	require.NotNil(t, th)
	assert.Equal(t, "Top: top", th.Message)
	assert.Nil(t, th.Cause)
}

func TestTranslate_AggregateWithTypedNilInner(t *testing.T) {
	th := NewTranslator().Translate(NewAggregate("hollow", (*Exception)(nil)))
	require.NotNil(t, th)
	assert.Equal(t, "System.AggregateException: hollow", th.Message)
	assert.Empty(t, th.Frames)
}

func TestTranslate_JoinSkipsTypedNil(t *testing.T) {
	inner := &Exception{Type: "Leaf", Message: "leaf"}
	th := NewTranslator().Translate(errors.Join((*Exception)(nil), inner))
	assert.Equal(t, "Leaf: leaf", th.Message)
}

func TestThrowable_String(t *testing.T) {
	th := &Throwable{
		Message: "Top: top",
		Frames: []StackFrame{
			{ClassName: "A", MethodSignature: "One ()", FileLabel: "A.One..cs", LineNumber: 1},
			{ClassName: "N", MethodSignature: "Native ()", FileLabel: "N.Native..cs", LineNumber: NativeLineNumber},
		},
		Cause: &Throwable{Message: "Inner: inner"},
	}

	want := "Top: top\n" +
		"\tat A.One ()(A.One..cs:1)\n" +
		"\tat N.Native ()(Native Method)\n" +
		"Caused by: Inner: inner\n"
	assert.Equal(t, want, th.String())
}
