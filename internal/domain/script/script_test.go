package script_test

import (
	"context"
	"testing"

	"github.com/okian/avatarcast/internal/domain/model"
	"github.com/okian/avatarcast/internal/domain/script"
	. "github.com/smartystreets/goconvey/convey"
)

type fixedDetector struct {
	lang string
	ok   bool
}

func (f fixedDetector) Detect(string) (string, bool) { return f.lang, f.ok }

func TestAnalyzer_Analyze(t *testing.T) {
	Convey("Given an analyzer with a fixed detector", t, func() {
		ctx := context.Background()
		a := script.NewAnalyzer(script.WithDetector(fixedDetector{lang: "pt", ok: true}))

		Convey("When the script is blank", func() {
			_, err := a.Analyze(ctx, script.Request{Script: "   \n"})

			Convey("Then it fails with ErrEmptyScript", func() {
				So(err, ShouldEqual, script.ErrEmptyScript)
			})
		})

		Convey("When the request names an educational tone", func() {
			sc, err := a.Analyze(ctx, script.Request{Script: "Aprende marketing digital en 3 pasos", Tone: "Educational", Language: "ES"})

			Convey("Then it maps to serious and keeps the requested language", func() {
				So(err, ShouldBeNil)
				So(sc.Tone, ShouldEqual, model.ToneSerious)
				So(sc.Language, ShouldEqual, "es")
				So(sc.Descriptor, ShouldContainSubstring, "professional")
				So(sc.Tokens, ShouldContain, "marketing")
				So(sc.Tokens, ShouldContain, "professional")
			})
		})

		Convey("When no language is requested", func() {
			sc, err := a.Analyze(ctx, script.Request{Script: "Olá a todos", Tone: "happy"})

			Convey("Then the detector decides", func() {
				So(err, ShouldBeNil)
				So(sc.Language, ShouldEqual, "pt")
				So(sc.Tone, ShouldEqual, model.ToneHappy)
			})
		})

		Convey("When detection fails", func() {
			b := script.NewAnalyzer(script.WithDetector(fixedDetector{}), script.WithDefaultLanguage("EN"))
			sc, err := b.Analyze(ctx, script.Request{Script: "hi"})

			Convey("Then the default language is used", func() {
				So(err, ShouldBeNil)
				So(sc.Language, ShouldEqual, "en")
			})
		})
	})
}

func TestResolveTone(t *testing.T) {
	Convey("Given requested tone names", t, func() {
		cases := map[string]model.Tone{
			"promotional":   model.ToneEnergetic,
			"sales":         model.ToneEnergetic,
			"funny":         model.ToneHappy,
			"informative":   model.ToneSerious,
			"storytelling":  model.ToneThoughtful,
			" THOUGHTFUL ":  model.ToneThoughtful,
			"neutral":       model.ToneNeutral,
			"inspirational": model.ToneThoughtful,
		}

		Convey("Then each maps onto the closed tone set", func() {
			for name, want := range cases {
				got, ok := script.ResolveTone(name)
				So(ok, ShouldBeTrue)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then unknown or empty names are rejected", func() {
			_, ok := script.ResolveTone("melancholic-jazz")
			So(ok, ShouldBeFalse)
			_, ok = script.ResolveTone("")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestInferTone(t *testing.T) {
	Convey("Given scripts without an explicit tone", t, func() {
		So(script.InferTone("Oferta limitada! Compra ahora!"), ShouldEqual, model.ToneEnergetic)
		So(script.InferTone("Aprende estos consejos de estrategia"), ShouldEqual, model.ToneSerious)
		So(script.InferTone("Un video divertido para celebrar"), ShouldEqual, model.ToneHappy)
		So(script.InferTone("Imagina tu vida en diez años"), ShouldEqual, model.ToneThoughtful)
		So(script.InferTone("Nuestro producto está disponible"), ShouldEqual, model.ToneNeutral)
	})
}

func TestLinguaDetector(t *testing.T) {
	Convey("Given a lingua detector", t, func() {
		d := script.NewLinguaDetector()

		Convey("Then short texts are not guessed", func() {
			_, ok := d.Detect("hola")
			So(ok, ShouldBeFalse)
		})

		Convey("Then a Spanish sentence is detected", func() {
			lang, ok := d.Detect("Hoy vamos a aprender cómo vender más en las redes sociales con tres consejos sencillos")
			So(ok, ShouldBeTrue)
			So(lang, ShouldEqual, "es")
		})
	})
}
