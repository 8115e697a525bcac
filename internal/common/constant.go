package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the admin
// access token.
const AccessTokenHeaderName = "access_token"

// AdminSubject is the JWT subject granted access to the admin service.
const AdminSubject = "admin"
