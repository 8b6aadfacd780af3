package scanning

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		client *Ollama
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client, err = NewOllama(server.URL(), "llama3.2-vision", "", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Complete", func() {
		var (
			image    []byte
			response string
		)

		BeforeEach(func() {
			image = []byte("fake png bytes")
		})

		JustBeforeEach(func() {
			response, err = client.Complete(context.Background(), "extract the items", image)
		})

		When("the server answers successfully", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/generate"),
					ghttp.VerifyJSON(`{
						"model": "llama3.2-vision",
						"prompt": "extract the items",
						"images": ["`+base64.StdEncoding.EncodeToString([]byte("fake png bytes"))+`"],
						"stream": false
					}`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"response": "```json\n{}\n```",
						"done":     true,
					}),
				))
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the raw completion text", func() {
				Expect(response).To(Equal("```json\n{}\n```"))
			})
		})

		When("no image is attached", func() {
			BeforeEach(func() {
				image = nil
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/generate"),
					ghttp.VerifyJSON(`{
						"model": "llama3.2-vision",
						"prompt": "extract the items",
						"stream": false
					}`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"response": "Milk", "done": true}),
				))
			})

			It("should omit the images field", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(response).To(Equal("Milk"))
			})
		})

		When("the server answers with an error status", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model exploded"))
			})

			It("should return a StatusError carrying the status and body", func() {
				var statusErr *StatusError
				Expect(errors.As(err, &statusErr)).To(BeTrue())
				Expect(statusErr.Code).To(Equal(http.StatusInternalServerError))
				Expect(statusErr.Body).To(Equal("model exploded"))
			})
		})

		When("the server does not answer within the deadline", func() {
			BeforeEach(func() {
				slow, clientErr := NewOllama(server.URL(), "llama3.2-vision", "", 10*time.Millisecond)
				Expect(clientErr).NotTo(HaveOccurred())
				client = slow
				server.AppendHandlers(func(w http.ResponseWriter, r *http.Request) {
					time.Sleep(200 * time.Millisecond)
				})
			})

			It("should return an error wrapping ErrTimeout", func() {
				Expect(errors.Is(err, ErrTimeout)).To(BeTrue())
			})
		})
	})

	Describe("Embed", func() {
		var vector []float32

		JustBeforeEach(func() {
			vector, err = client.Embed(context.Background(), "Pink Lady Apples")
		})

		When("the server answers successfully", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest("POST", "/api/embeddings"),
					ghttp.VerifyJSON(`{"model": "llama3.2-vision", "prompt": "Pink Lady Apples"}`),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
						"embedding": []float32{0.1, 0.2, 0.3},
					}),
				))
			})

			It("should return the vector", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(vector).To(Equal([]float32{0.1, 0.2, 0.3}))
			})
		})

		When("the server returns an empty embedding", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"embedding": []float32{},
				}))
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
