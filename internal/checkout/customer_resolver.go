package checkout

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// CustomerResolver returns the single gateway customer for a billing
// document, creating it on first use.
type CustomerResolver struct {
	gateway Gateway
	retry   RetryPolicy
	log     *zap.Logger
}

func NewCustomerResolver(gateway Gateway, retry RetryPolicy, log *zap.Logger) *CustomerResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &CustomerResolver{gateway: gateway, retry: retry, log: log}
}

// NormalizeDocument strips CPF/CNPJ punctuation and whitespace.
func NormalizeDocument(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateIdentity rejects identities that cannot be resolved remotely.
func ValidateIdentity(identity Identity) (Identity, error) {
	const op = "validate identity"
	if strings.TrimSpace(identity.BillingDocument) == "" {
		return identity, validationf(op, "billing document is required")
	}
	doc := NormalizeDocument(identity.BillingDocument)
	if len(doc) != 11 && len(doc) != 14 {
		return identity, validationf(op, "billing document must have 11 (CPF) or 14 (CNPJ) digits")
	}
	identity.BillingDocument = doc
	identity.Email = strings.TrimSpace(identity.Email)
	identity.Name = strings.TrimSpace(identity.Name)
	if identity.Email != "" {
		if _, err := mail.ParseAddress(identity.Email); err != nil {
			return identity, validationf(op, "email %q is not valid", identity.Email)
		}
	}
	return identity, nil
}

// ResolveCustomer looks the customer up by billing document and creates it
// when missing. A creation conflict means a concurrent request won the race,
// so the customer is re-queried instead of failing.
func (r *CustomerResolver) ResolveCustomer(ctx context.Context, identity Identity) (Customer, error) {
	identity, err := ValidateIdentity(identity)
	if err != nil {
		return Customer{}, err
	}
	log := r.log.With(zap.String("document_suffix", documentSuffix(identity.BillingDocument)))

	existing, err := r.find(ctx, identity.BillingDocument)
	if err != nil {
		return Customer{}, err
	}
	if existing != nil {
		log.Debug("customer resolved by lookup", zap.String("customer_ref", existing.RemoteRef))
		return *existing, nil
	}

	if identity.Name == "" {
		return Customer{}, validationf("create customer", "name is required to create a customer")
	}

	result, err := withRetry(ctx, r.retry, func(ctx context.Context) (CreateCustomerResult, error) {
		return r.gateway.CreateCustomer(ctx, identity)
	})
	if err != nil {
		return Customer{}, err
	}
	if result.Created != nil {
		log.Info("customer created", zap.String("customer_ref", result.Created.RemoteRef))
		return *result.Created, nil
	}

	log.Info("customer creation conflicted, re-querying")
	existing, err = r.find(ctx, identity.BillingDocument)
	if err != nil {
		return Customer{}, err
	}
	if existing == nil {
		return Customer{}, NewError(KindRejection, "resolve customer",
			errors.New("gateway reported an existing customer but none matches the document"))
	}
	return *existing, nil
}

// ResolveExisting confirms a caller-supplied customer reference.
func (r *CustomerResolver) ResolveExisting(ctx context.Context, ref string) (Customer, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Customer{}, validationf("resolve existing customer", "customer reference is empty")
	}
	customer, err := withRetry(ctx, r.retry, func(ctx context.Context) (*Customer, error) {
		return r.gateway.GetCustomer(ctx, ref)
	})
	if err != nil {
		return Customer{}, err
	}
	if customer == nil {
		return Customer{}, NewError(KindRejection, "resolve existing customer", ErrRemoteNotFound)
	}
	return *customer, nil
}

func (r *CustomerResolver) find(ctx context.Context, document string) (*Customer, error) {
	return withRetry(ctx, r.retry, func(ctx context.Context) (*Customer, error) {
		return r.gateway.FindCustomerByDocument(ctx, document)
	})
}

func documentSuffix(doc string) string {
	if len(doc) <= 4 {
		return doc
	}
	return doc[len(doc)-4:]
}
