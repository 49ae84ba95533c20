package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/barcode-scanner/internal/scanning/scanningtest"
)

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		decoder *Ollama
		symbol  Symbol
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		decoder, err = NewOllama(server.URL(), "qwen2-vl")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		symbol, err = decoder.Decode(context.Background(), scanningtest.Blank())
	})

	When("the model reads a symbol", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: `{"symbol": "0123456789012", "format": "EAN_13"}`},
					Done:    true,
				}),
			))
		})

		It("should return the symbol", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(symbol.Text).To(Equal("0123456789012"))
		})

		It("should send the image with the request", func() {
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	When("the model sees no symbol", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
				Message: ollamaMessage{Role: "assistant", Content: `{"symbol": null}`},
				Done:    true,
			}))
		})

		It("should return ErrNotFound", func() {
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("should return an error with the status", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 500"))
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})
})

var _ = Describe("NewOllama", func() {
	It("should apply defaults", func() {
		o, err := NewOllama("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(o.baseURL).To(Equal("http://localhost:11434"))
		Expect(o.model).To(Equal("llava"))
		Expect(o.Close()).To(Succeed())
	})
})
