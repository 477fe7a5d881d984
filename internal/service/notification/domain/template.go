// internal/service/notification/domain/template.go
package domain

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
)

const (
	TemplateOrderCreatedEmail   = "order_created_email"
	TemplateOrderCreatedSMS     = "order_created_sms"
	TemplateProducerNewOrder    = "producer_new_order_email"
	TemplateOrderShippedEmail   = "order_shipped_email"
	TemplateOrderDeliveredEmail = "order_delivered_email"
)

// Message 是渲染后交给 Sender 的内容
type Message struct {
	TaskID  string
	Channel Channel
	To      string
	Subject string
	Body    string
}

type templateDef struct {
	channel  Channel
	subject  *template.Template
	body     *template.Template
	required []string
}

// Renderer 持有所有已编译的模板；payload 在渲染时才校验
type Renderer struct {
	defs map[string]templateDef
}

func NewRenderer() *Renderer {
	r := &Renderer{defs: make(map[string]templateDef)}
	r.register(TemplateOrderCreatedEmail, ChannelEmail,
		"Order {{.orderId}} confirmed",
		`Hello {{.buyerName}},

thank you for your order {{.orderId}}.
{{range .items}}- {{.name}} x{{.quantity}}: {{.lineTotal}}
{{end}}
Shipping ({{.shippingMethod}}): {{.shippingCost}}
Total: {{.total}} {{.currency}}

Track your order with code {{.trackingToken}}.
`,
		"orderId", "buyerName", "items", "shippingMethod", "shippingCost", "total", "currency", "trackingToken")
	r.register(TemplateOrderCreatedSMS, ChannelSMS,
		"",
		"Order {{.orderId}} received. Total {{.total}} {{.currency}}. Tracking code: {{.trackingToken}}",
		"orderId", "total", "currency", "trackingToken")
	r.register(TemplateProducerNewOrder, ChannelEmail,
		"New order {{.orderId}}",
		`Hello {{.producerName}},

a new order {{.orderId}} contains your products:
{{range .items}}- {{.name}} x{{.quantity}}
{{end}}
Buyer: {{.buyerName}}
Shipping method: {{.shippingMethod}}
`,
		"producerName", "orderId", "items", "buyerName", "shippingMethod")
	r.register(TemplateOrderShippedEmail, ChannelEmail,
		"Order {{.orderId}} has shipped",
		"Hello {{.buyerName}},\n\nyour order {{.orderId}} is on its way. Tracking code: {{.trackingToken}}\n",
		"orderId", "buyerName", "trackingToken")
	r.register(TemplateOrderDeliveredEmail, ChannelEmail,
		"Order {{.orderId}} delivered",
		"Hello {{.buyerName}},\n\nyour order {{.orderId}} has been delivered. Enjoy!\n",
		"orderId", "buyerName")
	return r
}

func (r *Renderer) register(name string, channel Channel, subject, body string, required ...string) {
	def := templateDef{
		channel:  channel,
		body:     template.Must(template.New(name).Option("missingkey=error").Parse(body)),
		required: required,
	}
	if subject != "" {
		def.subject = template.Must(template.New(name + ".subject").Option("missingkey=error").Parse(subject))
	}
	r.defs[name] = def
}

// Has 判断模板是否存在且属于该渠道
func (r *Renderer) Has(channel Channel, name string) bool {
	def, ok := r.defs[name]
	return ok && def.channel == channel
}

func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render 校验必填键并执行模板；任何失败都是永久失败（重试不会改变结果）
func (r *Renderer) Render(task *Task) (*Message, error) {
	def, ok := r.defs[task.Template]
	if !ok {
		return nil, fmt.Errorf("%w: %w %q", ErrRender, ErrUnknownTemplate, task.Template)
	}
	if def.channel != task.Channel {
		return nil, fmt.Errorf("%w: template %q is not a %s template", ErrRender, task.Template, task.Channel)
	}
	var missing []string
	for _, key := range def.required {
		if v, ok := task.Payload[key]; !ok || v == nil {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s missing %s", ErrRender, task.Template, strings.Join(missing, ", "))
	}

	msg := &Message{TaskID: task.ID, Channel: task.Channel, To: task.Recipient}
	var sb strings.Builder
	if err := def.body.Execute(&sb, task.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	msg.Body = sb.String()
	if def.subject != nil {
		sb.Reset()
		if err := def.subject.Execute(&sb, task.Payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRender, err)
		}
		msg.Subject = sb.String()
	}
	return msg, nil
}
